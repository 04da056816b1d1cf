package source

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/gridmon/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// settings are the resolved connection parameters for one host.
type settings struct {
	hostname     string
	port         string
	user         string
	identityFile string
}

func (s settings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// DefaultSSHConfigPath is ~/.ssh/config.
func DefaultSSHConfigPath() string {
	return filepath.Join(homeDir(), ".ssh", "config")
}

// resolveSettings splits user@host:port and fills in whatever the SSH
// config file says about host.
func resolveSettings(host, configPath string) settings {
	st := settings{port: "22", user: currentUser()}

	explicitUser := false
	if at := strings.Index(host, "@"); at != -1 {
		st.user = host[:at]
		host = host[at+1:]
		explicitUser = true
	}
	if h, p, err := net.SplitHostPort(host); err == nil && p != "" {
		host, st.port = h, p
	}
	st.hostname = host

	cfg, err := loadSSHConfig(configPath)
	if err != nil || cfg == nil {
		return st
	}
	if v, _ := cfg.Get(host, "HostName"); v != "" {
		st.hostname = v
	}
	if v, _ := cfg.Get(host, "Port"); v != "" {
		st.port = v
	}
	if v, _ := cfg.Get(host, "User"); v != "" && !explicitUser {
		st.user = v
	}
	if v, _ := cfg.Get(host, "IdentityFile"); v != "" {
		st.identityFile = expandPath(v)
	}
	return st
}

// loadSSHConfig decodes the part of the file before the first Match
// block, which ssh_config can't parse. A missing file gives nil.
func loadSSHConfig(path string) (*ssh_config.Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var kept []string
	for _, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			break
		}
		kept = append(kept, line)
	}
	return ssh_config.Decode(bytes.NewReader([]byte(strings.Join(kept, "\n"))))
}

// ConfiguredHosts lists the concrete host aliases in an SSH config file,
// sorted. Wildcard patterns are left out.
func ConfiguredHosts(configPath string) ([]string, error) {
	cfg, err := loadSSHConfig(configPath)
	if err != nil || cfg == nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, h := range cfg.Hosts {
		for _, p := range h.Patterns {
			alias := p.String()
			if strings.ContainsAny(alias, "*?!") || seen[alias] {
				continue
			}
			seen[alias] = true
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out, nil
}

// clientConfig builds auth and host key checking for st: agentMethod
// first when non-nil, then the configured identity file, then the default
// keys. Host keys are checked against knownHostsPath.
func clientConfig(st settings, knownHostsPath string, agentMethod ssh.AuthMethod) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if agentMethod != nil {
		auth = append(auth, agentMethod)
	}

	keys := []string{st.identityFile}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keys = append(keys, filepath.Join(homeDir(), ".ssh", name))
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if m, err := keyFileAuth(k); err == nil {
			auth = append(auth, m)
		}
	}
	if len(auth) == 0 {
		return nil, errors.New(errors.ErrSSH, "No SSH auth methods available",
			"Check your keys are loaded: ssh-add -l")
	}

	hostKeys, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Couldn't load "+knownHostsPath,
			fmt.Sprintf("Connect once by hand to record the host key: ssh %s", st.hostname))
	}

	return &ssh.ClientConfig{
		User:            st.user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback(hostKeys),
	}, nil
}

func hostKeyCallback(check ssh.HostKeyCallback) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if stderrors.As(err, &keyErr) {
			if len(keyErr.Want) > 0 {
				return fmt.Errorf("host key mismatch for %s: server sent %s key", hostname, key.Type())
			}
			return fmt.Errorf("%s is not in known_hosts", hostname)
		}
		return err
	}
}

// dialAgent connects to the agent at SSH_AUTH_SOCK, or returns nil.
func dialAgent() net.Conn {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	return conn
}

// agentAuth returns an auth method backed by the agent on conn, or nil
// when the agent holds no keys. The caller owns conn.
func agentAuth(conn net.Conn) ssh.AuthMethod {
	client := agent.NewClient(conn)
	if signers, err := client.Signers(); err != nil || len(signers) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(client.Signers)
}

func keyFileAuth(path string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}
