package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"
	"time"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"

	"festplan/internal/model"
)

// ErrInvalidFormat is returned for import payloads that are not a friend
// schedule (bad JSON, missing name or schedule, unknown statuses).
var ErrInvalidFormat = errors.New("invalid format")

// QRSize is the edge length in pixels of exported QR images.
const QRSize = 512

// wirePayload mirrors the exchange schema. Pointers let us tell a missing
// field from an empty one.
type wirePayload struct {
	Name       *string            `json:"name"`
	Schedule   *map[string]string `json:"schedule"`
	ExportedAt string             `json:"exportedAt"`
}

// ParseFriendSchedule validates an exchange payload. Nothing is imported
// when an error is returned.
func ParseFriendSchedule(data []byte) (model.FriendSchedule, error) {
	var w wirePayload
	if err := json.Unmarshal(bytes.TrimSpace(data), &w); err != nil {
		return model.FriendSchedule{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if w.Name == nil || strings.TrimSpace(*w.Name) == "" {
		return model.FriendSchedule{}, fmt.Errorf("%w: missing name", ErrInvalidFormat)
	}
	if w.Schedule == nil || *w.Schedule == nil {
		return model.FriendSchedule{}, fmt.Errorf("%w: missing schedule", ErrInvalidFormat)
	}

	sched := make(map[string]model.Status, len(*w.Schedule))
	for id, raw := range *w.Schedule {
		st, err := model.ParseStatus(raw)
		if err != nil {
			return model.FriendSchedule{}, fmt.Errorf("%w: event %s: %v", ErrInvalidFormat, id, err)
		}
		if st == model.StatusNone {
			continue
		}
		sched[id] = st
	}

	return model.FriendSchedule{
		Name:       strings.TrimSpace(*w.Name),
		Schedule:   sched,
		ExportedAt: w.ExportedAt,
	}, nil
}

// Import parses data as either a JSON payload or an image holding a QR
// code of one, and appends the result to friends.
func Import(friends *FriendsStore, data []byte) (model.FriendSchedule, error) {
	payload := data
	if looksLikeImage(data) {
		text, err := DecodeQR(data)
		if err != nil {
			return model.FriendSchedule{}, err
		}
		payload = []byte(text)
	}

	fs, err := ParseFriendSchedule(payload)
	if err != nil {
		return model.FriendSchedule{}, err
	}
	friends.Add(fs)
	return fs, nil
}

// Export builds the exchange payload for the given plan.
func Export(name string, prefs map[string]model.Status, now time.Time) model.FriendSchedule {
	sched := make(map[string]model.Status, len(prefs))
	for id, st := range prefs {
		if st != model.StatusNone {
			sched[id] = st
		}
	}
	return model.FriendSchedule{
		Name:       strings.TrimSpace(name),
		Schedule:   sched,
		ExportedAt: now.UTC().Format(time.RFC3339Nano),
	}
}

// MarshalExport renders the payload the way export files are written.
func MarshalExport(fs model.FriendSchedule) ([]byte, error) {
	return json.MarshalIndent(fs, "", "  ")
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ExportFileName returns the download name for an export, e.g.
// "Sam Lee" -> "sam-lee-festplan-plan.json".
func ExportFileName(name string) string {
	slug := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	if slug == "" {
		slug = "my"
	}
	return slug + "-festplan-plan.json"
}

// EncodeQR renders fs as a PNG QR code holding its compact JSON form.
func EncodeQR(fs model.FriendSchedule) ([]byte, error) {
	data, err := json.Marshal(fs)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, QRSize)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}

// DecodeQR extracts the text of the first QR code found in an image.
func DecodeQR(img []byte) (string, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("%w: image: %v", ErrInvalidFormat, err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(decoded)
	if err != nil {
		return "", fmt.Errorf("%w: bitmap: %v", ErrInvalidFormat, err)
	}
	res, err := zxqr.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("%w: no QR code found: %v", ErrInvalidFormat, err)
	}
	return res.GetText(), nil
}

func looksLikeImage(data []byte) bool {
	return bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) ||
		bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF})
}
