package mount

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/constants"
	"github.com/dc-tec/openbao-console/internal/openbao"
)

var mountCapabilities = sets.New(
	constants.CapabilityCreate,
	constants.CapabilityUpdate,
	constants.CapabilitySudo,
	constants.CapabilityRoot,
)

// CapabilityPath is the sys path whose capabilities decide whether typ can be
// mounted at its default path.
func CapabilityPath(category catalog.Category, typ string) string {
	if category == catalog.CategoryAuth {
		return "sys/auth/" + typ
	}
	return "sys/mounts/" + typ
}

// CanMount reports whether caps allow enabling a mount.
func CanMount(caps sets.Set[string]) bool {
	if caps.Has(constants.CapabilityDeny) {
		return false
	}
	return caps.HasAny(mountCapabilities.UnsortedList()...)
}

// FilterPickable returns the pickable types the token may mount. The check is
// advisory: when it cannot be made, every pickable type is returned together
// with the error, and OpenBao remains the authority at submit time.
func FilterPickable(ctx context.Context, api openbao.MountAPI, cat *catalog.Catalog, category catalog.Category, enterprise bool) ([]catalog.Descriptor, error) {
	pickable := cat.Pickable(category, enterprise)
	if len(pickable) == 0 {
		return pickable, nil
	}

	paths := make([]string, 0, len(pickable))
	for _, d := range pickable {
		paths = append(paths, CapabilityPath(category, d.Type))
	}

	caps, err := api.CapabilitiesSelf(ctx, paths)
	if err != nil {
		return pickable, fmt.Errorf("capability check failed: %w", err)
	}

	out := make([]catalog.Descriptor, 0, len(pickable))
	for _, d := range pickable {
		if CanMount(caps[CapabilityPath(category, d.Type)]) {
			out = append(out, d)
		}
	}
	return out, nil
}
