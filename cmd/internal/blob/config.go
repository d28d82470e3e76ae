package blob

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrConfig = errors.New("blob config invalid")

// Config selects and configures the S3 backend. An empty Bucket means the
// in-memory store.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c Config) Enabled() bool { return c.Bucket != "" }

// LoadConfigFromEnv reads PLAZA_S3_BUCKET, PLAZA_S3_REGION (default
// us-east-1), PLAZA_S3_ENDPOINT (MinIO and friends), PLAZA_S3_ACCESS_KEY_ID
// and PLAZA_S3_SECRET_ACCESS_KEY.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Bucket:          strings.TrimSpace(os.Getenv("PLAZA_S3_BUCKET")),
		Region:          strings.TrimSpace(os.Getenv("PLAZA_S3_REGION")),
		Endpoint:        strings.TrimSpace(os.Getenv("PLAZA_S3_ENDPOINT")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("PLAZA_S3_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("PLAZA_S3_SECRET_ACCESS_KEY")),
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return Config{}, fmt.Errorf("%w: access key id and secret must be set together", ErrConfig)
	}
	return cfg, nil
}
