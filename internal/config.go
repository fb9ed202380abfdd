package internal

import "time"

type Config struct {
	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	EncryptionKey  string `env:"ENCRYPTION_KEY,required=true"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,required=true"`

	SweepInterval     time.Duration `env:"SWEEP_INTERVAL,required=true"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,required=true"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,required=true"`
}
