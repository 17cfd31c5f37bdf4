package loader

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	envelopeMagic  = "MODIMPORT"
	envelopeFormat = 1
)

// ErrBadEnvelope is returned for compiled-unit files that are not ours or
// were written by an incompatible format version.
var ErrBadEnvelope = errors.New("loader: bad compiled-unit envelope")

// Envelope frames an encoded unit on disk. SourceMTime is zero for
// standalone bytecode files.
type Envelope struct {
	Magic       string `msgpack:"magic"`
	Format      int    `msgpack:"format"`
	Name        string `msgpack:"name"`
	SourceMTime int64  `msgpack:"source_mtime"`
	Unit        []byte `msgpack:"unit"`
}

// EncodeEnvelope frames unit for name.
func EncodeEnvelope(name string, sourceMTime time.Time, unit []byte) ([]byte, error) {
	env := Envelope{
		Magic:  envelopeMagic,
		Format: envelopeFormat,
		Name:   name,
		Unit:   unit,
	}
	if !sourceMTime.IsZero() {
		env.SourceMTime = sourceMTime.UnixNano()
	}
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("loader: encode envelope %s: %w", name, err)
	}
	return data, nil
}

// DecodeEnvelope parses data written by EncodeEnvelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Magic != envelopeMagic || env.Format != envelopeFormat {
		return nil, fmt.Errorf("%w: magic %q format %d", ErrBadEnvelope, env.Magic, env.Format)
	}
	return &env, nil
}
