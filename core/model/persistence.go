package model

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// FormatVersion is the artifact envelope version written by Marshal.
const FormatVersion = 1

const artifactMagic = "HOLDOUT1"

// envelope is the gob-encoded body that follows the magic header.
type envelope struct {
	Version   int
	Algorithm string
	Kind      Kind
	Fitted    bool
	Params    []byte // JSON, informational only
	CreatedAt time.Time
	Payload   []byte
}

// ArtifactInfo describes an artifact without decoding the learned state.
type ArtifactInfo struct {
	Algorithm string                 `json:"algorithm"`
	Kind      string                 `json:"kind"`
	Version   int                    `json:"version"`
	Fitted    bool                   `json:"fitted"`
	CreatedAt time.Time              `json:"created_at"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Size      int                    `json:"size_bytes"`
}

// ToJSON renders the info for display.
func (ai *ArtifactInfo) ToJSON() ([]byte, error) {
	return json.MarshalIndent(ai, "", "  ")
}

// Marshal serializes a classifier into a versioned artifact.
func Marshal(clf Classifier) ([]byte, error) {
	if clf == nil {
		return nil, errors.NewValueError("Marshal", "classifier must not be nil")
	}
	payload, err := clf.MarshalBinary()
	if err != nil {
		return nil, errors.NewModelError("Marshal", "failed to encode model state", err)
	}
	params, err := json.Marshal(clf.GetParams())
	if err != nil {
		return nil, errors.NewModelError("Marshal", "failed to encode hyperparameters", err)
	}

	var buf bytes.Buffer
	buf.WriteString(artifactMagic)
	env := envelope{
		Version:   FormatVersion,
		Algorithm: clf.Algorithm(),
		Kind:      clf.Kind(),
		Fitted:    clf.IsFitted(),
		Params:    params,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	if err := gob.NewEncoder(&buf).Encode(&env); err != nil {
		return nil, errors.NewModelError("Marshal", "failed to encode envelope", err)
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(data []byte) (*envelope, error) {
	if len(data) < len(artifactMagic) || string(data[:len(artifactMagic)]) != artifactMagic {
		return nil, errors.NewCorruptArtifactError("missing artifact header", nil)
	}
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data[len(artifactMagic):])).Decode(&env); err != nil {
		return nil, errors.NewCorruptArtifactError("undecodable envelope", err)
	}
	if env.Version != FormatVersion {
		return nil, errors.NewCorruptArtifactError(fmt.Sprintf("unsupported format version %d", env.Version), nil)
	}
	return &env, nil
}

// Unmarshal restores a classifier written by Marshal. Any decoding problem, including
// an unknown algorithm or version, yields a CorruptArtifactError.
func Unmarshal(data []byte) (Classifier, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	registryMu.RLock()
	factory, ok := registry[env.Algorithm]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NewCorruptArtifactError(fmt.Sprintf("unknown algorithm %q", env.Algorithm), nil)
	}

	clf, err := factory(nil)
	if err != nil {
		return nil, errors.NewCorruptArtifactError("cannot construct "+env.Algorithm, err)
	}
	if err := clf.UnmarshalBinary(env.Payload); err != nil {
		var corrupt *errors.CorruptArtifactError
		if errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, errors.NewCorruptArtifactError("undecodable model state", err)
	}
	if clf.Kind() != env.Kind {
		return nil, errors.NewCorruptArtifactError("model kind does not match envelope", nil)
	}
	return clf, nil
}

// Inspect reads the envelope of an artifact.
func Inspect(data []byte) (*ArtifactInfo, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	info := &ArtifactInfo{
		Algorithm: env.Algorithm,
		Kind:      env.Kind.String(),
		Version:   env.Version,
		Fitted:    env.Fitted,
		CreatedAt: env.CreatedAt,
		Size:      len(data),
	}
	if len(env.Params) > 0 {
		if err := json.Unmarshal(env.Params, &info.Params); err != nil {
			return nil, errors.NewCorruptArtifactError("undecodable hyperparameters", err)
		}
	}
	return info, nil
}

// Save writes the artifact for clf to w.
func Save(w io.Writer, clf Classifier) error {
	data, err := Marshal(clf)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write model artifact")
	}
	return nil
}

// Load reads an artifact from r.
func Load(r io.Reader) (Classifier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read model artifact")
	}
	return Unmarshal(data)
}

// EncodeGob is a helper for MarshalBinary implementations.
func EncodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "gob encode")
	}
	return buf.Bytes(), nil
}

// DecodeGob is a helper for UnmarshalBinary implementations.
func DecodeGob(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return errors.Wrap(err, "gob decode")
	}
	return nil
}
