package loaders

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/kjk/pckstore/pck"
	"github.com/melbahja/goph"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const defaultSftpPort = 22

// SftpConfig configures authentication for sftp loaders.
// With no Password and no KeyPath, ssh agent is used.
type SftpConfig struct {
	Password      string
	KeyPath       string
	KeyPassphrase string
	// InsecureHostKey skips checking host key against ~/.ssh/known_hosts
	InsecureHostKey bool
}

// sftpAddr is a parsed sftp://user@host[:port]##remote/path
type sftpAddr struct {
	User string
	Host string
	Port uint
	Dir  string
}

func parseSftpPath(s string) (*sftpAddr, error) {
	rest, ok := strings.CutPrefix(s, "sftp://")
	if !ok {
		return nil, fmt.Errorf("%w: '%s' is not a sftp path", pck.ErrFormat, s)
	}
	server, dir, ok := strings.Cut(rest, "##")
	if !ok || dir == "" {
		return nil, fmt.Errorf("%w: '%s' must be sftp://user@host[:port]##remote/path", pck.ErrFormat, s)
	}
	user, hostPort, ok := strings.Cut(server, "@")
	if !ok || user == "" || hostPort == "" {
		return nil, fmt.Errorf("%w: '%s' has no user@host", pck.ErrFormat, s)
	}
	res := &sftpAddr{User: user, Host: hostPort, Port: defaultSftpPort, Dir: dir}
	if host, port, ok := strings.Cut(hostPort, ":"); ok {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 || host == "" {
			return nil, fmt.Errorf("%w: invalid port in '%s'", pck.ErrFormat, s)
		}
		res.Host = host
		res.Port = uint(n)
	}
	return res, nil
}

// SftpRawLoader reads files from a directory on a remote server over sftp
type SftpRawLoader struct {
	keyFinder
	path   string
	addr   *sftpAddr
	conf   SftpConfig
	opts   *RawOptions
	client *goph.Client
	sftp   *sftp.Client
}

var _ RawLoader = &SftpRawLoader{}

// NewSftpRawLoader connects to the server and lists the remote directory
func NewSftpRawLoader(path string, opts *RawOptions) (*SftpRawLoader, error) {
	addr, err := parseSftpPath(path)
	if err != nil {
		return nil, err
	}
	l := &SftpRawLoader{path: path, addr: addr, opts: opts}
	if opts != nil && opts.Sftp != nil {
		l.conf = *opts.Sftp
	}
	if err = l.Open(); err != nil {
		opts.logger().Error("failed to connect", "path", path, "error", err)
		return nil, err
	}
	defer l.Close()
	keys, err := l.listDir()
	if err != nil {
		opts.logger().Error("failed to list remote directory", "path", path, "error", err)
		return nil, err
	}
	l.keys = keys
	return l, nil
}

func (l *SftpRawLoader) auth() (goph.Auth, error) {
	switch {
	case l.conf.Password != "":
		return goph.Password(l.conf.Password), nil
	case l.conf.KeyPath != "":
		return goph.Key(l.conf.KeyPath, l.conf.KeyPassphrase)
	}
	return goph.UseAgent()
}

func (l *SftpRawLoader) connect() error {
	auth, err := l.auth()
	if err != nil {
		return fmt.Errorf("%w: ssh auth: %s", pck.ErrPathAccess, err)
	}
	callback := ssh.InsecureIgnoreHostKey()
	if !l.conf.InsecureHostKey {
		if callback, err = goph.DefaultKnownHosts(); err != nil {
			return fmt.Errorf("%w: known hosts: %s", pck.ErrPathAccess, err)
		}
	}
	client, err := goph.NewConn(&goph.Config{
		User:     l.addr.User,
		Addr:     l.addr.Host,
		Port:     l.addr.Port,
		Auth:     auth,
		Timeout:  goph.DefaultTimeout,
		Callback: callback,
	})
	if err != nil {
		return fmt.Errorf("%w: ssh to '%s': %s", pck.ErrPathAccess, l.addr.Host, err)
	}
	sc, err := client.NewSftp()
	if err != nil {
		client.Close()
		return fmt.Errorf("%w: sftp to '%s': %s", pck.ErrPathAccess, l.addr.Host, err)
	}
	l.client = client
	l.sftp = sc
	return nil
}

// Open connects to the server. A dead connection is re-established.
func (l *SftpRawLoader) Open() error {
	if l.sftp != nil {
		if _, err := l.sftp.Getwd(); err == nil {
			return nil
		}
		l.opts.logger().Warn("reconnecting", "path", l.path)
		_ = l.Close()
	}
	return l.connect()
}

func (l *SftpRawLoader) Close() error {
	var errs []error
	if l.sftp != nil {
		errs = append(errs, l.sftp.Close())
		l.sftp = nil
	}
	if l.client != nil {
		errs = append(errs, l.client.Close())
		l.client = nil
	}
	return errors.Join(errs...)
}

func (l *SftpRawLoader) listDir() ([]string, error) {
	entries, err := l.sftp.ReadDir(l.addr.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	var res []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			res = append(res, name)
			continue
		}
		if l.opts != nil && l.opts.ExcludeDir != nil && l.opts.ExcludeDir(name) {
			continue
		}
		sub, err := l.sftp.ReadDir(path.Join(l.addr.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
		}
		for _, se := range sub {
			if !se.IsDir() {
				res = append(res, name+"/"+se.Name())
			}
		}
	}
	res = l.opts.filterKeys(res)
	sort.Strings(res)
	return res, nil
}

func (l *SftpRawLoader) Path() string { return l.path }
func (l *SftpRawLoader) Type() string { return TypeSftp }

func (l *SftpRawLoader) Get(key string) (io.ReadCloser, error) {
	if !l.has(key) {
		return nil, errNoKey(key, l.path)
	}
	if err := l.Open(); err != nil {
		return nil, err
	}
	f, err := l.sftp.Open(path.Join(l.addr.Dir, key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	return f, nil
}

func (l *SftpRawLoader) MarshalJSON() ([]byte, error) {
	return marshalHandoff(TypeSftp, l.path)
}
