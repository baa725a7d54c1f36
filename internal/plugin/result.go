package plugin

import "github.com/gameoverlay/gameoverlay/pkg/types"

// Vec3 is a world-space vector in metres.
type Vec3 = types.Vec3

// Default buffer capacities handed to Fetch.
const (
	DefaultContextCap  = 256
	DefaultIdentityCap = 1024
)

// FetchResult is filled by Plugin.Fetch. All-zero vectors mean no
// meaningful position this cycle.
type FetchResult struct {
	AvatarPos, AvatarFront, AvatarTop Vec3
	CameraPos, CameraFront, CameraTop Vec3

	Context  *ByteString
	Identity *WideString
}

// NewFetchResult allocates a result with the given buffer capacities.
func NewFetchResult(contextCap, identityCap int) *FetchResult {
	return &FetchResult{
		Context:  NewByteString(contextCap),
		Identity: NewWideString(identityCap),
	}
}

// Reset zeroes every field so nothing stale survives a fetch.
func (r *FetchResult) Reset() {
	r.AvatarPos, r.AvatarFront, r.AvatarTop = Vec3{}, Vec3{}, Vec3{}
	r.CameraPos, r.CameraFront, r.CameraTop = Vec3{}, Vec3{}, Vec3{}
	r.Context.Reset()
	r.Identity.Reset()
}

// Pose converts the result for publishing under shortName.
func (r *FetchResult) Pose(shortName string) types.PoseInfo {
	return types.PoseInfo{
		Avatar:   types.Frame{Position: r.AvatarPos, Front: r.AvatarFront, Top: r.AvatarTop},
		Camera:   types.Frame{Position: r.CameraPos, Front: r.CameraFront, Top: r.CameraTop},
		Context:  NamespaceContext(shortName, r.Context.Bytes()),
		Identity: r.Identity.String(),
	}
}
