// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package redisutil

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisClientFromURL creates a client for a `redis://`, `rediss://` or
// `redis+sentinel://` URL. An empty URL returns a nil client.
//
//	redis+sentinel://<user>:<password>@<host1>:<port1>,<host2>:<port2>/<master_name>/<db>
func RedisClientFromURL(redisURL string) (redis.UniversalClient, error) {
	if redisURL == "" {
		return nil, nil
	}
	u, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "redis+sentinel" {
		opts, err := parseFailoverURL(u)
		if err != nil {
			return nil, err
		}
		return redis.NewFailoverClient(opts), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func parseFailoverURL(u *url.URL) (*redis.FailoverOptions, error) {
	opts := &redis.FailoverOptions{}
	if u.User != nil {
		opts.SentinelUsername = u.User.Username()
		opts.SentinelPassword, _ = u.User.Password()
	}
	for _, hostPort := range strings.Split(u.Host, ",") {
		host, port, err := net.SplitHostPort(hostPort)
		if err != nil {
			host, port = hostPort, ""
		}
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "6379"
		}
		opts.SentinelAddrs = append(opts.SentinelAddrs, net.JoinHostPort(host, port))
	}
	path := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	switch len(path) {
	case 0:
		return nil, fmt.Errorf("redis: master name is required")
	case 1:
		opts.MasterName = path[0]
	case 2:
		opts.MasterName = path[0]
		db, err := strconv.Atoi(path[1])
		if err != nil {
			return nil, fmt.Errorf("redis: invalid database number: %q", path[1])
		}
		opts.DB = db
	default:
		return nil, fmt.Errorf("redis: invalid URL path: %s", u.Path)
	}
	if len(u.Query()) > 0 {
		return nil, fmt.Errorf("redis: query options are not supported for sentinel URLs")
	}
	return opts, nil
}
