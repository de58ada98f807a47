package ingestion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNoMessages is returned when no message matches the subject filter
var ErrNoMessages = errors.New("no messages found")

// resumeExtensions are the attachment types worth downloading
var resumeExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
}

// GmailHandler fetches resume attachments from a Gmail inbox
type GmailHandler struct {
	service   *gmail.Service
	inputsDir string
	logger    *logrus.Logger
}

// NewGmailHandler creates a Gmail handler from an OAuth client file and a
// previously saved token. The server never runs the interactive consent flow.
func NewGmailHandler(ctx context.Context, credentialsPath, tokenPath, inputsDir string, logger *logrus.Logger) (*GmailHandler, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		return nil, fmt.Errorf("no usable gmail token at %s (authorize at %s): %w", tokenPath, authURL, err)
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}

	return NewGmailHandlerWithService(srv, inputsDir, logger), nil
}

// NewGmailHandlerWithService wraps an existing Gmail service
func NewGmailHandlerWithService(srv *gmail.Service, inputsDir string, logger *logrus.Logger) *GmailHandler {
	return &GmailHandler{
		service:   srv,
		inputsDir: inputsDir,
		logger:    logger,
	}
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// FetchAttachments downloads resume attachments from messages matching
// subject into the inputs directory and returns the stored names
func (gh *GmailHandler) FetchAttachments(ctx context.Context, subject string) ([]string, error) {
	if err := os.MkdirAll(gh.inputsDir, 0755); err != nil {
		return nil, &StorageError{Op: "create directory", Path: gh.inputsDir, Err: err}
	}

	user := "me"
	query := fmt.Sprintf("subject:%q has:attachment", subject)

	r, err := gh.service.Users.Messages.List(user).Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	if len(r.Messages) == 0 {
		return nil, fmt.Errorf("%w with subject: %s", ErrNoMessages, subject)
	}

	var saved []string
	for _, msg := range r.Messages {
		message, err := gh.service.Users.Messages.Get(user, msg.Id).Context(ctx).Do()
		if err != nil {
			gh.logger.WithError(err).WithField("message_id", msg.Id).Warn("Unable to retrieve message")
			continue
		}
		if message.Payload == nil {
			continue
		}

		sender := extractSenderName(message)

		for _, part := range attachmentParts(message.Payload) {
			ext := strings.ToLower(filepath.Ext(part.Filename))
			if !resumeExtensions[ext] {
				gh.logger.WithField("attachment", part.Filename).Debug("Skipping non-resume attachment")
				continue
			}

			attachment, err := gh.service.Users.Messages.Attachments.Get(user, msg.Id, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				gh.logger.WithError(err).WithField("attachment", part.Filename).Warn("Unable to retrieve attachment")
				continue
			}

			data, err := decodeAttachment(attachment.Data)
			if err != nil {
				gh.logger.WithError(err).WithField("attachment", part.Filename).Warn("Unable to decode attachment")
				continue
			}

			name := attachmentFileName(sender, part.Filename)
			filePath := filepath.Join(gh.inputsDir, name)
			if err := os.WriteFile(filePath, data, 0644); err != nil {
				return saved, &StorageError{Op: "write", Path: filePath, Err: err}
			}

			gh.logger.WithField("file_name", name).Info("Downloaded attachment")
			saved = append(saved, name)
		}
	}

	return saved, nil
}

// attachmentParts walks a MIME tree and returns the parts carrying an attachment
func attachmentParts(part *gmail.MessagePart) []*gmail.MessagePart {
	if part == nil {
		return nil
	}

	var parts []*gmail.MessagePart
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		parts = append(parts, part)
	}
	for _, child := range part.Parts {
		parts = append(parts, attachmentParts(child)...)
	}
	return parts
}

func decodeAttachment(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// attachmentFileName prefixes the attachment with its sender so that two
// applicants sending "resume.pdf" do not collide
func attachmentFileName(sender, filename string) string {
	base := unsafeNameChars.ReplaceAllString(filepath.Base(filename), "_")
	return fmt.Sprintf("%s_%s", sender, base)
}

// extractSenderName extracts the sender's name from email headers
func extractSenderName(message *gmail.Message) string {
	if message.Payload == nil {
		return "Unknown"
	}
	for _, header := range message.Payload.Headers {
		if header.Name == "From" {
			// "Name <email@example.com>"
			from := header.Value
			if idx := strings.Index(from, "<"); idx > 0 {
				name := strings.Trim(strings.TrimSpace(from[:idx]), `"`)
				return unsafeNameChars.ReplaceAllString(name, "")
			}
			if idx := strings.Index(from, "@"); idx > 0 {
				return unsafeNameChars.ReplaceAllString(from[:idx], "")
			}
			return "Unknown"
		}
	}
	return "Unknown"
}
