package report

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"attendguard/internal/attendance"
	"attendguard/internal/notify"
	"attendguard/internal/session"
)

// Archiver stores a finished workbook.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) error
}

// ObjectPutter is the part of the S3 client the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads workbooks to a bucket under reports/.
type S3Archiver struct {
	client ObjectPutter
	Bucket string
}

// NewS3Archiver creates an archiver. A nil client loads the default AWS config.
func NewS3Archiver(ctx context.Context, client ObjectPutter, bucket string) (*S3Archiver, error) {
	if client == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		client = s3.NewFromConfig(cfg)
	}
	return &S3Archiver{client: client, Bucket: bucket}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String("reports/" + key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s in bucket %s: %w", key, a.Bucket, err)
	}
	return nil
}

// Job builds the daily report, emails it and optionally archives it.
type Job struct {
	store    attendance.Store
	mailer   notify.Notifier
	archiver Archiver
	loc      *time.Location

	Interval time.Duration
	Now      func() time.Time
}

// NewJob creates a job. mailer and archiver may be nil.
func NewJob(store attendance.Store, mailer notify.Notifier, archiver Archiver, loc *time.Location) *Job {
	if loc == nil {
		loc = time.Local
	}
	return &Job{store: store, mailer: mailer, archiver: archiver, loc: loc, Interval: 24 * time.Hour, Now: time.Now}
}

// Run reports on day (YYYY-MM-DD). It returns false when there was no data.
func (j *Job) Run(ctx context.Context, day string) (bool, error) {
	sum, err := Build(ctx, j.store, day)
	if err != nil {
		return false, err
	}
	if sum.Empty() {
		log.Printf("no attendance data for %s, report skipped", day)
		return false, nil
	}
	book, err := Workbook(sum)
	if err != nil {
		return false, err
	}
	log.Printf("generated daily report %s (%d identities)", sum.Filename(), len(sum.Totals))

	if j.archiver != nil {
		if err := j.archiver.Archive(ctx, sum.Filename(), book); err != nil {
			log.Printf("report archive failed: %v", err)
		}
	}
	if j.mailer == nil {
		return true, nil
	}
	err = j.mailer.Notify(ctx, notify.Message{
		Subject:     fmt.Sprintf("Daily Attendance Report - %s", day),
		Body:        fmt.Sprintf("Attached is the daily attendance report for %s.", day),
		Attachments: []notify.Attachment{{Filename: sum.Filename(), ContentType: ContentType, Content: book}},
	})
	if err != nil {
		return true, fmt.Errorf("send report: %w", err)
	}
	return true, nil
}

// Today returns the current day in the job's location.
func (j *Job) Today() string {
	return j.Now().In(j.loc).Format(session.DateLayout)
}

// Start runs the job once now and then every Interval until ctx is done.
func (j *Job) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := j.Run(ctx, j.Today()); err != nil {
				log.Printf("daily report error: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
