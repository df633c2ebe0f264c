package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/storage"
	"backend/internal/worksheet"

	"github.com/google/uuid"
)

// ReceiptURLTTL bounds how long a signed read link stays valid.
const ReceiptURLTTL = 10 * time.Minute

type ReceiptUploadDTO struct {
	BatchID  uuid.UUID
	LineNo   int
	Filename string
	Body     io.Reader
}

type ReceiptRefDTO struct {
	Ref       string `json:"ref"`
	SignedURL string `json:"signed_url"`
}

// ReceiptService uploads receipt files and mints signed read URLs for them.
// The returned refs are what the worksheet stores in a line's attachment list.
type ReceiptService interface {
	Upload(ctx context.Context, actor worksheet.ActorContext, input ReceiptUploadDTO) (*ReceiptRefDTO, error)
	SignURL(ref string) (string, error)
	// Open resolves a verified signed token back to the object stream.
	Open(ctx context.Context, token string) (io.ReadCloser, error)
}

type receiptService struct {
	store  storage.ObjectStore
	signer *storage.URLSigner
	audits repository.AuditRepository
}

func NewReceiptService(store storage.ObjectStore, signer *storage.URLSigner, audits repository.AuditRepository) ReceiptService {
	return &receiptService{store: store, signer: signer, audits: audits}
}

func (s *receiptService) Upload(ctx context.Context, actor worksheet.ActorContext, input ReceiptUploadDTO) (*ReceiptRefDTO, error) {
	if input.BatchID == uuid.Nil {
		return nil, fmt.Errorf("upload requires a batch_id")
	}

	path := storage.ObjectPath(actor.ID, input.BatchID, input.LineNo, input.Filename)
	if err := s.store.Upload(ctx, storage.DefaultBucket, path, input.Body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	details, _ := json.Marshal(map[string]interface{}{
		"batch_id": input.BatchID.String(),
		"line_no":  input.LineNo,
		"path":     path,
	})
	entry := model.AuditLog{
		UserID:     &actor.ID,
		Action:     model.ActionUploadReceipt,
		EntityID:   input.BatchID.String(),
		EntityName: input.Filename,
		Details:    string(details),
	}
	if err := s.audits.Log(ctx, &entry); err != nil {
		return nil, fmt.Errorf("failed to write audit log: %w", err)
	}

	ref := storage.DefaultBucket + ":" + path
	url, err := s.signer.SignedURL(storage.DefaultBucket, path, ReceiptURLTTL)
	if err != nil {
		return nil, err
	}
	return &ReceiptRefDTO{Ref: ref, SignedURL: url}, nil
}

func (s *receiptService) SignURL(ref string) (string, error) {
	bucket, path := storage.SplitBucketAndPath(ref)
	if path == "" {
		return "", ErrNotFound
	}
	return s.signer.SignedURL(bucket, path, ReceiptURLTTL)
}

func (s *receiptService) Open(ctx context.Context, token string) (io.ReadCloser, error) {
	bucket, path, err := s.signer.Verify(token)
	if err != nil {
		return nil, ErrForbidden
	}
	rc, err := s.store.Open(ctx, bucket, path)
	if err != nil {
		return nil, ErrNotFound
	}
	return rc, nil
}
