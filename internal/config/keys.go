package config

// Keys persisted in the store.
const (
	KeyHost    = "VPS_HOST"
	KeyAppName = "APP_NAME"
	KeyAppURL  = "APP_URL"
	KeyAppPort = "APP_PORT"
	KeyVolumes = "APP_VOLUMES"
	KeyEmail   = "CERT_EMAIL"
)
