package presence

import "github.com/redis/go-redis/v9"

// KEYS: members zset, alive zset, record hash, rooms set.
// ARGV: participant id, capacity (<=0 unlimited), now ms, room id, field/value pairs...
// Returns {code, previous record fields...}: code -1 full, 0 added, 1 replaced.
var joinScript = redis.NewScript(`
local existed = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not existed then
  local cap = tonumber(ARGV[2])
  if cap > 0 and redis.call('ZCARD', KEYS[1]) >= cap then
    return {-1}
  end
end
local prev = redis.call('HGETALL', KEYS[3])
redis.call('DEL', KEYS[3])
redis.call('HSET', KEYS[3], unpack(ARGV, 5))
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('SADD', KEYS[4], ARGV[4])
local out = {0}
if existed then
  out[1] = 1
  for i = 1, #prev do out[#out + 1] = prev[i] end
end
return out
`)

// KEYS: members zset, alive zset, record hash, rooms set.
// ARGV: participant id, owner connection ref ("" removes unconditionally), room id.
// Returns the removed record fields, or an empty list when nothing was removed.
var leaveScript = redis.NewScript(`
if ARGV[2] ~= '' then
  local owner = redis.call('HGET', KEYS[3], 'connectionRef')
  if owner ~= ARGV[2] then
    return {}
  end
end
local rec = redis.call('HGETALL', KEYS[3])
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[3])
if redis.call('ZCARD', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[4], ARGV[3])
end
return rec
`)

// KEYS: record hash.
// ARGV: owner connection ref ("" for server-side updates), field/value pairs...
// Returns 1 when the record was updated, 0 when absent or owned by another connection.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if ARGV[1] ~= '' and redis.call('HGET', KEYS[1], 'connectionRef') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 1
`)

// KEYS: members zset, alive zset, record hash, rooms set.
// ARGV: participant id, cutoff ms, room id.
// Removes the record only if its liveness is still at or before the cutoff.
var reapScript = redis.NewScript(`
local seen = redis.call('ZSCORE', KEYS[2], ARGV[1])
if seen and tonumber(seen) > tonumber(ARGV[2]) then
  return {}
end
local rec = redis.call('HGETALL', KEYS[3])
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[3])
if redis.call('ZCARD', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[4], ARGV[3])
end
return rec
`)
