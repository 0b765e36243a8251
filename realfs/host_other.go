//go:build !windows

package realfs

func (h *hostFiler) native(name string) string {
	return h.rooted(name)
}

// Host attributes are kept in memory off Windows.
func hostAttributes(h *hostFiler) attributer {
	return nil
}
