package presence

// Fixed palette, one slot per user hash. Stable across instances so every
// participant renders the same user in the same color.
var palette = [...]string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8",
	"#F7DC6F", "#BB8FCE", "#85C1E2", "#F8B739", "#52B788",
}

// ColorFor maps a user id deterministically onto the palette.
func ColorFor(userID string) string {
	var hash int32
	for _, c := range userID {
		hash = int32(c) + ((hash << 5) - hash)
	}
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return palette[h%int64(len(palette))]
}
