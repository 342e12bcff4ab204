// Package config loads process configuration from environment variables into
// tagged structs using github.com/caarlos0/env/v11, optionally seeding the
// environment from dotenv files with github.com/joho/godotenv.
//
// Each package of the service owns its Config struct (push.Config,
// pg.Config, redis.Config, ...) and the binary loads them one by one:
//
//	var pushCfg push.Config
//	config.MustLoad(&pushCfg)
//
// Optional credentials (VAPID keys, Firebase service account) are plain
// fields without the required flag: their absence disables a channel rather
// than failing startup.
package config
