package models

import "strconv"

// ConnectionDescriptor describes how to reach one database instance.
// Descriptors come from configuration and are never mutated at runtime.
type ConnectionDescriptor struct {
	Name             string       `json:"name"                        yaml:"name"`
	Kind             DatabaseKind `json:"kind"                        yaml:"kind"`
	Host             string       `json:"host"                        yaml:"host"`
	Port             int          `json:"port"                        yaml:"port"`
	CredentialRef    string       `json:"-"                           yaml:"credential_ref"`
	ConnectionString string       `json:"-"                           yaml:"connection_string"`
	SSLMode          string       `json:"ssl_mode,omitempty"          yaml:"ssl_mode"`
	AuthSource       string       `json:"auth_source,omitempty"       yaml:"auth_source"`
	Description      string       `json:"description,omitempty"       yaml:"description"`
}

// Address returns host:port, falling back to the kind's default port.
func (d ConnectionDescriptor) Address() string {
	port := d.Port
	if port == 0 {
		switch d.Kind {
		case DatabaseKindDocument:
			port = 27017
		default:
			port = 5432
		}
	}

	return d.Host + ":" + strconv.Itoa(port)
}

// Credentials is a decrypted username/password pair. It is never persisted.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Empty reports whether no username is present.
func (c Credentials) Empty() bool {
	return c.Username == ""
}
