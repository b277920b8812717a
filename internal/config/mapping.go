package config

import (
	"errors"
	"os"
)

// MappingConfig describes how source items become destination rows.
type MappingConfig struct {
	// RecreateTables drops a table before its first CREATE in this process.
	RecreateTables bool `yaml:"recreate_tables"`
	// TableName is the static destination table. Mutually exclusive with
	// DynamoDB.DiscriminatorAttributeName.
	TableName string         `yaml:"table_name"`
	DynamoDB  DynamoDBConfig `yaml:"dynamodb"`
	S3        S3Config       `yaml:"s3"`
	// Filter is an optional CEL expression over `doc`; items it rejects are skipped.
	Filter string `yaml:"filter"`
}

type DynamoDBConfig struct {
	DiscriminatorAttributeName string `yaml:"discriminator_attribute_name"`
	PartitionKeyName           string `yaml:"partition_key_name"`
	SortKeyName                string `yaml:"sort_key_name"`
	TableName                  string `yaml:"table_name"`
}

type S3Config struct {
	BucketName string `yaml:"bucket_name"`
	Prefix     string `yaml:"prefix"`
}

func DefaultMappingConfig() MappingConfig {
	return MappingConfig{}
}

func (c *MappingConfig) ApplyDefaults() {}

func (c *MappingConfig) ApplyEnvOverrides() {
	if val := os.Getenv("S3_BUCKET_NAME"); val != "" {
		c.S3.BucketName = val
	}
	if val := os.Getenv("S3_PREFIX"); val != "" {
		c.S3.Prefix = val
	}
	if val := os.Getenv("DYNAMODB_TABLE_NAME"); val != "" {
		c.DynamoDB.TableName = val
	}
}

func (c *MappingConfig) ResolvePaths(_ string) {}

func (c *MappingConfig) Validate() error {
	hasDiscriminator := c.DynamoDB.DiscriminatorAttributeName != ""
	hasTable := c.TableName != ""
	switch {
	case hasDiscriminator && hasTable:
		return errors.New("mapping.table_name and mapping.dynamodb.discriminator_attribute_name are mutually exclusive")
	case !hasDiscriminator && !hasTable:
		return errors.New("one of mapping.table_name or mapping.dynamodb.discriminator_attribute_name is required")
	}
	if c.DynamoDB.PartitionKeyName == "" {
		return errors.New("mapping.dynamodb.partition_key_name is required")
	}
	return nil
}
