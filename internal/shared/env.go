package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// SecretFetcher retrieves a secret payload by id.
type SecretFetcher interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadEnv loads environment overrides.
//
// Variables from the AWS Secrets Manager secret named by secretID (or AWS_SECRET_ID) are applied first,
// then the dotenv file. Variables already present in the environment are never overwritten.
func LoadEnv(ctx context.Context, logger *log.Logger, envFile string, secrets SecretsConfig) error {
	secretID := secrets.AWSSecretID
	if secretID == "" {
		secretID = os.Getenv("AWS_SECRET_ID")
	}

	if secretID != "" {
		cfg, err := loadAWSConfig(ctx, secrets.AWSRegion)
		if err != nil {
			return fmt.Errorf("failed to load aws config: %w", err)
		}
		applied, err := ApplySecret(ctx, secretsmanager.NewFromConfig(cfg), secretID)
		if err != nil {
			return err
		}
		logger.Info("loaded secrets", "secret", secretID, "applied", applied)
	}

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		logger.Debug("no env file found, using process environment", "path", envFile)
	}

	return nil
}

// ApplySecret fetches a JSON object secret and exports its keys as environment variables.
//
// Returns the number of variables set.
func ApplySecret(ctx context.Context, client SecretFetcher, secretID string) (int, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch secret %s: %w", secretID, err)
	}

	var payload []byte
	switch {
	case out.SecretString != nil:
		payload = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		payload = out.SecretBinary
	default:
		return 0, fmt.Errorf("%w: secret %s has no payload", ErrInvalidConfig, secretID)
	}

	var kv map[string]any
	if err := json.Unmarshal(payload, &kv); err != nil {
		return 0, fmt.Errorf("%w: secret %s is not a JSON object: %v", ErrInvalidConfig, secretID, err)
	}

	applied := 0
	for key, val := range kv {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("failed to set %s: %w", key, err)
		}
		applied++
	}
	return applied, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region != "" {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx)
}
