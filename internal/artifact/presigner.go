package artifact

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/agentdesk/internal/config"
	"go.uber.org/zap"
)

// NewPresigner builds an S3 presign client from the default AWS credential
// chain. Without a bucket it returns nil and uploads report ErrStorageUnavailable.
func NewPresigner(cfg config.Config, log *zap.Logger) (Presigner, error) {
	storage := cfg.Storage
	if strings.TrimSpace(storage.Bucket) == "" {
		log.Info("artifact storage disabled: no bucket configured")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(storage.Region))
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimSpace(storage.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return s3.NewPresignClient(client), nil
}
