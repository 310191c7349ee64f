package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	blobcore "whalewatcher/internal/blob/core"
	"whalewatcher/pkg/domain"
)

// DocumentUpload describes an artifact handed to IngestDocument.
type DocumentUpload struct {
	CaseID      string
	Name        string
	Type        string
	Source      string
	ContentType string
	Body        io.Reader
}

// ErrNoBlobStore is returned by artifact reads when no blob store is configured.
var ErrNoBlobStore = errors.New("no blob store configured")

// IngestDocument stores the artifact body (when a blob store is configured)
// and records a received document for the case.
func (s *Service) IngestDocument(ctx context.Context, up DocumentUpload) (Document, Result, error) {
	if up.CaseID == "" || up.Name == "" {
		return Document{}, Result{}, invalidf("document case id and name are required")
	}
	if _, err := s.GetCase(ctx, up.CaseID); err != nil {
		if IsNotFound(err) && !s.opts.strictLookups {
			return Document{}, Result{}, nil
		}
		return Document{}, Result{}, err
	}
	docID := uuid.NewString()
	var blobKey string
	if s.opts.blobs != nil && up.Body != nil {
		blobKey = blobcore.DocumentKey(up.CaseID, docID, up.Name)
		if _, err := s.opts.blobs.Put(ctx, blobKey, up.Body, blobcore.PutOptions{
			ContentType: up.ContentType,
			Metadata:    map[string]string{"case_id": up.CaseID, "document_id": docID},
		}); err != nil {
			return Document{}, Result{}, fmt.Errorf("store artifact: %w", err)
		}
	}
	var created Document
	res, err := s.run(ctx, "ingest_document", func(a *action) error {
		if _, ok := a.tx.Snapshot().FindCase(up.CaseID); !ok {
			return a.missing(domain.EntityCase, up.CaseID)
		}
		var err error
		created, err = a.tx.CreateDocument(domain.Document{
			Base:            domain.Base{ID: docID},
			CaseID:          up.CaseID,
			Name:            up.Name,
			Type:            up.Type,
			Source:          up.Source,
			ReceivedAt:      a.now,
			Status:          domain.DocumentReceived,
			ExtractedFields: []domain.ExtractedField{},
			Conflicts:       []domain.FieldConflict{},
			BlobKey:         blobKey,
		})
		if err != nil {
			return err
		}
		return a.auditAs(up.CaseID, domain.AuditDocumentReceived, "Document received: "+up.Name, ref(domain.EntityDocument, docID))
	})
	if err != nil && blobKey != "" {
		if _, derr := s.opts.blobs.Delete(ctx, blobKey); derr != nil {
			s.opts.logger.Warn("artifact cleanup failed", "key", blobKey, "error", derr)
		}
	}
	return created, res, err
}

// OpenDocumentArtifact returns a reader for the stored artifact of a document.
// Callers must close the reader.
func (s *Service) OpenDocumentArtifact(ctx context.Context, docID string) (blobcore.Info, io.ReadCloser, error) {
	if s.opts.blobs == nil {
		return blobcore.Info{}, nil, ErrNoBlobStore
	}
	var doc Document
	var found bool
	if err := s.view(ctx, func(v domain.TransactionView) error {
		doc, found = v.FindDocument(docID)
		return nil
	}); err != nil {
		return blobcore.Info{}, nil, err
	}
	if !found || doc.BlobKey == "" {
		return blobcore.Info{}, nil, ErrNotFound{Entity: domain.EntityDocument, ID: docID}
	}
	return s.opts.blobs.Get(ctx, doc.BlobKey)
}

// ProcessDocument records extracted fields, marks the document processed and
// recomputes field conflicts across the processed documents of its case.
// Matching application fields follow the new readings.
func (s *Service) ProcessDocument(ctx context.Context, docID string, fields []domain.ExtractedField) (Document, Result, error) {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Field == "" {
			return Document{}, Result{}, invalidf("extracted field name is required")
		}
		if _, dup := seen[f.Field]; dup {
			return Document{}, Result{}, invalidf("field %s extracted more than once", f.Field)
		}
		seen[f.Field] = struct{}{}
		if f.Confidence < 0 || f.Confidence > 1 {
			return Document{}, Result{}, invalidf("confidence %v for %s outside [0,1]", f.Confidence, f.Field)
		}
	}
	var updated Document
	res, err := s.run(ctx, "process_document", func(a *action) error {
		view := a.tx.Snapshot()
		doc, ok := view.FindDocument(docID)
		if !ok {
			return a.missing(domain.EntityDocument, docID)
		}
		extracted := make([]domain.ExtractedField, len(fields))
		var total float64
		for i, f := range fields {
			f.SourceDocID = docID
			extracted[i] = f
			total += f.Confidence
		}
		var err error
		updated, err = a.tx.UpdateDocument(docID, func(d *domain.Document) error {
			d.ExtractedFields = extracted
			d.Status = domain.DocumentProcessed
			d.ConfidenceScore = 0
			if len(extracted) > 0 {
				d.ConfidenceScore = total / float64(len(extracted))
			}
			return nil
		})
		if err != nil {
			return err
		}
		conflicts, err := s.refreshConflicts(a, doc.CaseID)
		if err != nil {
			return err
		}
		if d, ok := a.tx.Snapshot().FindDocument(docID); ok {
			updated = d
		}
		if err := s.projectFields(a, doc.CaseID, docID, extracted, conflicts); err != nil {
			return err
		}
		return a.auditAs(doc.CaseID, domain.AuditDocumentProcessed,
			fmt.Sprintf("Document processed: %s (%d field(s), %d conflict(s))", doc.Name, len(extracted), len(conflicts)),
			ref(domain.EntityDocument, docID))
	})
	return updated, res, err
}

// refreshConflicts recomputes conflicts for every processed document of the
// case. A field conflicts when at least two documents report different values.
// Only the first reading of a field counts for each document.
func (s *Service) refreshConflicts(a *action, caseID string) (map[string]domain.FieldConflict, error) {
	docs := a.tx.Snapshot().ListDocuments(caseID)
	readings := map[string][]domain.ConflictValue{}
	for _, d := range docs {
		if d.Status != domain.DocumentProcessed {
			continue
		}
		for _, f := range d.ExtractedFields {
			if hasReading(readings[f.Field], d.ID) {
				continue
			}
			readings[f.Field] = append(readings[f.Field], domain.ConflictValue{DocumentID: d.ID, Value: f.Value})
		}
	}
	conflicts := map[string]domain.FieldConflict{}
	for field, values := range readings {
		distinct := map[string]struct{}{}
		for _, v := range values {
			distinct[v.Value] = struct{}{}
		}
		if len(distinct) >= 2 {
			conflicts[field] = domain.FieldConflict{Field: field, Values: values}
		}
	}
	for _, d := range docs {
		if d.Status != domain.DocumentProcessed {
			continue
		}
		own := []domain.FieldConflict{}
		listed := map[string]struct{}{}
		for _, f := range d.ExtractedFields {
			c, ok := conflicts[f.Field]
			if _, dup := listed[f.Field]; !ok || dup {
				continue
			}
			listed[f.Field] = struct{}{}
			own = append(own, c)
		}
		sort.Slice(own, func(i, j int) bool { return own[i].Field < own[j].Field })
		if _, err := a.tx.UpdateDocument(d.ID, func(d *domain.Document) error {
			d.Conflicts = own
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return conflicts, nil
}

func hasReading(values []domain.ConflictValue, docID string) bool {
	for _, v := range values {
		if v.DocumentID == docID {
			return true
		}
	}
	return false
}

// projectFields updates application fields named by the extracted readings.
// Manually overridden fields are left alone.
func (s *Service) projectFields(a *action, caseID, docID string, extracted []domain.ExtractedField, conflicts map[string]domain.FieldConflict) error {
	byName := map[string]domain.ExtractedField{}
	for _, f := range extracted {
		byName[f.Field] = f
	}
	for _, field := range a.tx.Snapshot().ListApplicationFields(caseID) {
		reading, ok := byName[field.Name]
		if !ok || field.VerificationStatus == domain.FieldOverridden {
			continue
		}
		_, conflicted := conflicts[field.Name]
		if !conflicted && reading.Value == field.Value && field.VerificationStatus != domain.FieldStatusConflict {
			continue
		}
		if _, err := a.tx.UpdateApplicationField(field.ID, func(f *domain.ApplicationField) error {
			if conflicted {
				f.VerificationStatus = domain.FieldStatusConflict
				return nil
			}
			if reading.Value != f.Value {
				f.ChangeLog = append(f.ChangeLog, domain.FieldChange{
					PreviousValue: f.Value,
					NewValue:      reading.Value,
					Source:        "ocr:" + docID,
					Reason:        "extracted from document",
					Timestamp:     a.now,
				})
				f.Value = reading.Value
			}
			f.SourceDocID = docID
			f.Confidence = reading.Confidence
			f.VerificationStatus = domain.FieldUnverified
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// OverrideField sets a field value by hand. The reason is required and the
// previous value is kept in the change log.
func (s *Service) OverrideField(ctx context.Context, fieldID, value, reason string) (ApplicationField, Result, error) {
	if reason == "" {
		return ApplicationField{}, Result{}, invalidf("override reason is required")
	}
	var updated ApplicationField
	res, err := s.run(ctx, "override_field", func(a *action) error {
		field, ok := a.tx.Snapshot().FindApplicationField(fieldID)
		if !ok {
			return a.missing(domain.EntityApplicationField, fieldID)
		}
		var err error
		updated, err = a.tx.UpdateApplicationField(fieldID, func(f *domain.ApplicationField) error {
			f.ChangeLog = append(f.ChangeLog, domain.FieldChange{
				PreviousValue: f.Value,
				NewValue:      value,
				Source:        "manual-override",
				Reason:        reason,
				Timestamp:     a.now,
			})
			f.Value = value
			f.VerificationStatus = domain.FieldOverridden
			return nil
		})
		if err != nil {
			return err
		}
		return a.auditAs(field.CaseID, domain.AuditFieldOverridden,
			fmt.Sprintf("%s overridden: %q -> %q (%s)", field.Name, field.Value, value, reason),
			ref(domain.EntityApplicationField, fieldID))
	})
	return updated, res, err
}
