// Package security defines isolation profiles applied by the sandbox helper.
package security

// IsolationProfile describes filesystem, syscall and identity restrictions.
type IsolationProfile struct {
	RootFS         string `json:"rootfs,omitempty"`
	SeccompProfile string `json:"seccompProfile,omitempty"`
	DisableNetwork bool   `json:"disableNetwork,omitempty"`
	// RunAsUID and RunAsGID drop privileges before exec when positive.
	RunAsUID int `json:"uid,omitempty"`
	RunAsGID int `json:"gid,omitempty"`
}

// ProfileSet is a fixed table of named profiles.
type ProfileSet map[string]IsolationProfile

// Resolve looks up a profile by name.
func (p ProfileSet) Resolve(name string) (IsolationProfile, error) {
	profile, ok := p[name]
	if !ok {
		return IsolationProfile{}, &UnknownProfileError{Name: name}
	}
	return profile, nil
}

// UnknownProfileError reports a profile name missing from the table.
type UnknownProfileError struct {
	Name string
}

func (e *UnknownProfileError) Error() string {
	return "unknown isolation profile: " + e.Name
}
