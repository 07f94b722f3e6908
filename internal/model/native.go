package model

import (
	"fmt"

	"github.com/23skdu/longbow-volley/internal/weights"
)

// openNative wires the descriptor to the quantized transformer backend.
// The kernels are an external capability and are not part of this module;
// builds without them get a descriptive error instead of a partial model.
func openNative(desc *weights.Descriptor) (Model, error) {
	return nil, fmt.Errorf("%w: native compute for %s containers is provided by the runtime host",
		ErrBackendUnavailable, desc.Format)
}
