package config

import "os"

// AWSConfig selects the region and, for local stacks, the endpoint used by
// the DynamoDB and S3 clients. Credentials come from the default chain.
type AWSConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

func DefaultAWSConfig() AWSConfig {
	return AWSConfig{Region: "us-east-1"}
}

func (c *AWSConfig) ApplyDefaults() {
	if c.Region == "" {
		c.Region = DefaultAWSConfig().Region
	}
}

func (c *AWSConfig) ApplyEnvOverrides() {
	if val := os.Getenv("AWS_REGION"); val != "" {
		c.Region = val
	}
	if val := os.Getenv("AWS_ENDPOINT_URL"); val != "" {
		c.Endpoint = val
	}
}

func (c *AWSConfig) ResolvePaths(_ string) {}

func (c *AWSConfig) Validate() error { return nil }
