package leakybucket

import (
	"github.com/mediocregopher/radix/v3"
)

// Client is the subset of a Redis client a RedisBucket needs.
type Client interface {
	DoCmd(rcv interface{}, cmd, key string, args ...interface{}) error
	EvalScript(rcv interface{}, script string, keys []string, args ...interface{}) error
	Close() error
	NumActiveConns() int
}

// RadixClient is a concrete implementation backed by a radix Client (pool/cluster/sentinel).
type RadixClient struct {
	client   radix.Client
	poolSize int
	script   radix.EvalScript
}

// NewRadixClient builds a radix-backed Client with the given pool size and options.
// The leak script writes a hash with multi-field HSET, so Redis 4.0+ is required.
func NewRadixClient(network, addr string, size int, opts ...radix.PoolOpt) (*RadixClient, error) {
	pool, err := radix.NewPool(network, addr, size, opts...)
	if err != nil {
		return nil, err
	}
	return &RadixClient{
		client:   pool,
		poolSize: size,
		script:   radix.NewEvalScript(1, leakScriptSrc),
	}, nil
}

// DoCmd executes a single redis command.
func (c *RadixClient) DoCmd(rcv interface{}, cmd, key string, args ...interface{}) error {
	return c.client.Do(radix.FlatCmd(rcv, cmd, key, args...))
}

// EvalScript executes a Lua script with one or more keys.
// The leak script is preloaded; anything else is wrapped on the fly.
// Either way radix handles SCRIPT LOAD/EVALSHA.
func (c *RadixClient) EvalScript(rcv interface{}, script string, keys []string, args ...interface{}) error {
	es := c.script
	if script != leakScriptSrc {
		es = radix.NewEvalScript(len(keys), script)
	}
	return c.client.Do(es.FlatCmd(rcv, keys, args...))
}

// Close shuts down the underlying client.
func (c *RadixClient) Close() error {
	return c.client.Close()
}

// NumActiveConns returns the number of in-use connections (if backed by a Pool).
func (c *RadixClient) NumActiveConns() int {
	p, ok := c.client.(*radix.Pool)
	if !ok || c.poolSize <= 0 {
		return -1
	}
	active := c.poolSize - p.NumAvailConns()
	if active < 0 {
		active = 0
	}
	return active
}
