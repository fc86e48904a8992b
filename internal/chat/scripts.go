package chat

import "github.com/redis/go-redis/v9"

// KEYS: sequence counter, message log list.
// ARGV: message json, retention.
// Returns the assigned sequence; the stored entry carries it.
var appendScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
local msg = cjson.decode(ARGV[1])
msg['seq'] = seq
redis.call('RPUSH', KEYS[2], cjson.encode(msg))
redis.call('LTRIM', KEYS[2], -tonumber(ARGV[2]), -1)
return seq
`)
