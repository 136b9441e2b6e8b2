package supervisor

import (
	"fmt"
	"os"
	"os/user"
)

// Actor identifies the host and account a supervisor runs as.
type Actor struct {
	// Hostname is the machine name.
	Hostname string `yaml:"hostname"`
	// Username is the account running the supervisor.
	Username string `yaml:"username"`
}

// String formats the actor as user@host.
func (a Actor) String() string {
	return a.Username + "@" + a.Hostname
}

// DetectActor gathers host and user information for cycle logs and status reports.
func DetectActor() (Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Actor{}, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return Actor{}, fmt.Errorf("current user: %w", err)
	}

	return Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
