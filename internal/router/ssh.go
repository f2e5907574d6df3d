// SSH transport for routers whose firmware predates the REST API.
// A single scripted print command emits one "name|target|rate" line per queue;
// the output is trivially parseable and survives column re-ordering across
// firmware versions, unlike terminal-formatted print output.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// queueScript iterates simple queues and prints pipe-delimited rows.
const queueScript = `:foreach q in=[/queue simple find] do={:put ([/queue simple get $q name] . "|" . [/queue simple get $q target] . "|" . [/queue simple get $q rate])}`

// SSHClient fetches queue rates over an SSH session per cycle.
// The connection is dialed lazily and redialed after any session error, so a
// router reboot does not wedge the poll loop.
type SSHClient struct {
	addr   string
	config *ssh.ClientConfig
	client *ssh.Client
}

// NewSSHClient builds an SSH transport with password authentication.
func NewSSHClient(addr, user, password string, timeout time.Duration) *SSHClient {
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	return &SSHClient{
		addr: addr,
		config: &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.Password(password)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: use known_hosts in production
			Timeout:         timeout,
		},
	}
}

// ListQueues runs the queue print script and parses its output.
func (c *SSHClient) ListQueues(ctx context.Context) ([]Queue, error) {
	out, err := c.run(queueScript)
	if err != nil {
		// Drop the cached connection; next cycle redials.
		if c.client != nil {
			_ = c.client.Close()
			c.client = nil
		}
		return nil, fmt.Errorf("queue print over ssh: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseQueueLines(out), nil
}

// Close shuts down the cached SSH connection.
func (c *SSHClient) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *SSHClient) run(cmd string) (string, error) {
	if c.client == nil {
		client, err := ssh.Dial("tcp", c.addr, c.config)
		if err != nil {
			return "", fmt.Errorf("ssh dial %s: %w", c.addr, err)
		}
		c.client = client
	}

	sess, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(cmd)
	return string(out), err
}

// ParseQueueLines converts "name|target|rate" lines into Queue values.
// Blank lines and rows without all three fields are skipped — a half-printed
// row from a dropped session must not poison the cycle.
func ParseQueueLines(out string) []Queue {
	var queues []Queue
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		queues = append(queues, Queue{
			Name:   strings.TrimSpace(parts[0]),
			Target: strings.TrimSpace(parts[1]),
			Rate:   strings.TrimSpace(parts[2]),
		})
	}
	return queues
}
