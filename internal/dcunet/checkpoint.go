package dcunet

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-dcunet/internal/masknet"
	"github.com/example/go-dcunet/internal/safetensors"
)

// MetadataModelArgs is the safetensors metadata key holding the JSON args.
const MetadataModelArgs = "model_args"

// ErrNoModelArgs is returned when a checkpoint carries no model_args entry.
var ErrNoModelArgs = errors.New("dcunet: checkpoint has no model_args metadata")

// SaveCheckpoint writes tensors and args to path.
func SaveCheckpoint(path string, args Args, tensors []safetensors.Tensor) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("dcunet: encode model args: %w", err)
	}

	if err := safetensors.WriteFile(path, tensors, map[string]string{MetadataModelArgs: string(raw)}); err != nil {
		return fmt.Errorf("dcunet: save checkpoint: %w", err)
	}

	return nil
}

// InitCheckpoint validates args and writes a checkpoint with freshly
// initialized weights. The same seed always produces the same file.
func InitCheckpoint(path string, args Args, seed uint64) error {
	if err := args.Validate(); err != nil {
		return err
	}

	arch, err := masknet.Lookup(args.Architecture)
	if err != nil {
		return err
	}

	opts, err := args.MaskOptions()
	if err != nil {
		return err
	}

	return SaveCheckpoint(path, args, masknet.InitTensors(arch, opts, seed))
}

// ReadModelArgs returns the args stored in a checkpoint without loading
// its weights.
func ReadModelArgs(path string) (Args, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return Args{}, err
	}
	defer store.Close()

	return argsFromStore(store)
}

func argsFromStore(store *safetensors.Store) (Args, error) {
	raw, ok := store.MetadataValue(MetadataModelArgs)
	if !ok {
		return Args{}, ErrNoModelArgs
	}

	args, err := ParseArgs([]byte(raw))
	if err != nil {
		return Args{}, err
	}

	if err := args.Validate(); err != nil {
		return Args{}, err
	}

	return args, nil
}

// NewFromCheckpoint loads args and mask-network weights from a safetensors
// checkpoint.
func NewFromCheckpoint(path string) (*Model, error) {
	vb, store, err := masknet.OpenVarBuilder(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	args, err := argsFromStore(store)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	net, err := NewMaskNet(args, vb)
	if err != nil {
		return nil, err
	}

	slog.Debug("loaded checkpoint",
		"path", path,
		"architecture", args.Architecture,
		"tensors", len(store.Names()),
	)

	return New(args, net)
}

// NewMaskNet builds the native mask network described by args.
func NewMaskNet(args Args, vb *masknet.VarBuilder) (*masknet.MaskNet, error) {
	arch, err := masknet.Lookup(args.Architecture)
	if err != nil {
		return nil, err
	}

	opts, err := args.MaskOptions()
	if err != nil {
		return nil, err
	}

	return masknet.New(arch, opts, vb)
}
