// Package aws backs up the transaction audit history to S3-compatible
// object storage as a JSON-lines file.
package aws

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sConfig "github.com/MrLituation/BlockBox/internal/pkg/config"
)

const backupPrefix = "backups"

type Client struct {
	S3            *s3.Client
	Bucket        string
	BackupFileKey string
	TmpWritePath  string
}

func NewClient(serverConfig sConfig.Config) (Client, error) {
	ctx := context.Background()
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(serverConfig.S3Config.AccessKeyID, serverConfig.S3Config.SecretAccessKey, "")),
	)
	if err != nil {
		return Client{}, err
	}
	cfg.Region = serverConfig.S3Config.Region

	client := s3.NewFromConfig(cfg)

	return Client{
		S3:            client,
		Bucket:        serverConfig.S3Config.Bucket,
		BackupFileKey: fmt.Sprintf("%s/%s-transactions", backupPrefix, serverConfig.AppName),
		TmpWritePath:  fmt.Sprintf("/tmp/%s-transactions", serverConfig.AppName),
	}, nil
}

func (c *Client) UploadBackupFile(ctx context.Context) error {
	file, err := os.Open(c.TmpWritePath)
	if err != nil {
		return err
	}
	defer file.Close()

	uploader := manager.NewUploader(c.S3)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(c.BackupFileKey),
		Body:   file,
	})
	if err != nil {
		return err
	}

	return nil
}

// WriteBackupFile writes audit rows as JSON lines to the tmp path,
// replacing any previous file.
func (c *Client) WriteBackupFile(events []sConfig.TransactionEvent) error {
	file, err := os.OpenFile(c.TmpWritePath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	datawriter := bufio.NewWriter(file)
	for _, e := range events {
		j, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := datawriter.WriteString(fmt.Sprintf("%s\n", string(j))); err != nil {
			return err
		}
	}
	return datawriter.Flush()
}
