package config

// StorageConfig configures S3-compatible object storage (S3, R2, MinIO).
type StorageConfig struct {
	Type      string `mapstructure:"type"` // r2, s3, s3compatible; detected from endpoint when empty
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

// Enabled reports whether enough is configured to open a client.
func (s *StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}
