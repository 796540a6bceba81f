package utils

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const StorageProviderGCS = "gcs"

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}

// GetGCSClient builds a Google Cloud Storage client.
// Prefers ADC (service account / GOOGLE_APPLICATION_CREDENTIALS); explicit
// JSON can be supplied via GCS_CREDENTIALS_JSON for local runs.
func GetGCSClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func gcsBucket() (string, error) {
	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return "", errors.New("GCS_BUCKET is required")
	}
	return bucket, nil
}

func UploadObjectToGCS(ctx context.Context, objectKey string, contentType string, data []byte) error {
	bucket, err := gcsBucket()
	if err != nil {
		return err
	}
	client, err := GetGCSClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucket).Object(objectKey).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		return err
	}
	return wc.Close()
}

// ReadObjectFromGCS streams an object's content and reports its stored
// content type and size.
func ReadObjectFromGCS(ctx context.Context, objectKey string, w io.Writer) (string, int64, error) {
	bucket, err := gcsBucket()
	if err != nil {
		return "", 0, err
	}
	client, err := GetGCSClient(ctx)
	if err != nil {
		return "", 0, err
	}
	defer client.Close()

	obj := client.Bucket(bucket).Object(objectKey)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return "", 0, err
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return "", 0, err
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		return "", 0, err
	}
	return attrs.ContentType, attrs.Size, nil
}

func DeleteObjectFromGCS(ctx context.Context, objectKey string) error {
	bucket, err := gcsBucket()
	if err != nil {
		return err
	}
	client, err := GetGCSClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Bucket(bucket).Object(objectKey).Delete(ctx)
}
