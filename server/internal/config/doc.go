// Package config loads the server-side configuration from the `server:`
// section of the config file.
//
// Config fields:
//   - HTTPPort                    — port for the REST API and event channel (default 5000)
//   - Auth.Mode                   — "apikey" or "none"
//   - Auth.KeyEnv                 — environment variable holding the expected API key
//   - Auth.Header                 — HTTP header name (default "X-API-Key")
//   - Sessions.Retention          — how long stopped sessions stay queryable (default 24h)
//   - Sessions.BroadcastInterval  — sessions snapshot push cadence (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
