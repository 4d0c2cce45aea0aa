package py2droid

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Client wraps the S3 client for Cloudflare R2, where release artifacts
// are mirrored.
type R2Client struct {
	Client     *s3.Client
	BucketName string
}

// NewR2Client initializes an R2 client from the R2_* environment variables.
func NewR2Client() (*R2Client, error) {
	accountID := os.Getenv("R2_ACCOUNT_ID")
	accessKey := os.Getenv("R2_ACCESS_KEY_ID")
	secretKey := os.Getenv("R2_SECRET_ACCESS_KEY")
	bucketName := os.Getenv("R2_BUCKET_NAME")

	if accountID == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("R2 credentials missing in environment (R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME)")
	}

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
		}, nil
	})

	options := []func(*config.LoadOptions) error{
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion("auto"),
	}

	if Debug {
		options = append(options, config.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &R2Client{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".zip"):
		return "application/zip"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, checksumSuffix):
		return "text/plain"
	}
	return "application/octet-stream"
}

// UploadLocalFile uploads a file from disk to R2.
func (r *R2Client) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentTypeForKey(key)),
	})
	return err
}

// R2Object represents metadata for an object in R2.
type R2Object struct {
	Key  string
	Size int64
}

// ListObjects returns the objects in the bucket with the given prefix.
func (r *R2Client) ListObjects(ctx context.Context, prefix string) ([]R2Object, error) {
	var objects []R2Object
	paginator := s3.NewListObjectsV2Paginator(r.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.BucketName),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, R2Object{
				Key:  *obj.Key,
				Size: *obj.Size,
			})
		}
	}
	return objects, nil
}

// handlePublish mirrors the built module zips, their checksum sidecars and
// the update.json metadata to R2.
func handlePublish() error {
	ctx := context.Background()

	r2, err := NewR2Client()
	if err != nil {
		return err
	}

	zips, err := filepath.Glob(filepath.Join(DistDir, "*.zip"))
	if err != nil {
		return err
	}
	if len(zips) == 0 {
		return fmt.Errorf("nothing to publish in %s, run a build first", DistDir)
	}

	var uploads []string
	for _, zipPath := range zips {
		uploads = append(uploads, zipPath)
		if sidecar := zipPath + checksumSuffix; pathExists(sidecar) {
			uploads = append(uploads, sidecar)
		}
	}
	if updateJSON := filepath.Join(ModuleDir, updateJSONName); pathExists(updateJSON) {
		uploads = append(uploads, updateJSON)
	}

	var uploadedCount int
	for _, path := range uploads {
		key := filepath.Base(path)

		colArrow.Print("-> ")
		if !askForConfirmation(colWarn, "Upload %s to R2? ", key) {
			continue
		}
		colArrow.Print("-> ")
		colSuccess.Printf("Uploading to R2: %s\n", key)
		if err := r2.UploadLocalFile(ctx, key, path); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploadedCount++
	}

	reportStorageUsage(ctx, r2)

	colArrow.Print("-> ")
	colSuccess.Printf("Publish complete. Uploaded %d files.\n", uploadedCount)
	return nil
}

// reportStorageUsage prints the bucket's usage against the 10 GiB free
// tier. Errors are ignored; the report is informational.
func reportStorageUsage(ctx context.Context, r2 *R2Client) {
	objects, err := r2.ListObjects(ctx, "")
	if err != nil {
		debugf("Failed to list bucket for storage report: %v\n", err)
		return
	}

	var totalSize int64
	for _, obj := range objects {
		totalSize += obj.Size
	}

	const tenGB = 10 * 1024 * 1024 * 1024
	percent := (float64(totalSize) / float64(tenGB)) * 100
	colArrow.Print("-> ")
	colSuccess.Printf("Storage used: ")
	colNote.Printf("%s / 10 GiB (%.1f%%)\n", humanReadableSize(totalSize), percent)

	if totalSize > (tenGB * 9 / 10) {
		colWarn.Println("Warning: You are using over 90% of your free R2 storage limit!")
	}
}

func humanReadableSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// askForConfirmation prints a colored prompt and reads a Y/n answer, with
// yes as the default.
func askForConfirmation(p colorPrinter, format string, a ...any) bool {
	prompt := fmt.Sprintf(format, a...) + "[Y/n]: "
	reader := bufio.NewReader(os.Stdin)

	for {
		p.Printf("%s", prompt)
		response, err := reader.ReadString('\n')
		if err != nil {
			return false
		}

		switch strings.ToLower(strings.TrimSpace(response)) {
		case "y", "yes", "":
			return true
		case "n", "no":
			return false
		}
		colWarn.Println("Invalid input.")
	}
}
