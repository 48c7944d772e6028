package leakybucket

// leakScriptSrc performs one leak-then-admit step on a hash holding the
// bucket's fill level and the time it was last brought up to date.
//
// KEYS[1]  bucket key
// ARGV[1]  leak rate (units per second)
// ARGV[2]  capacity
// ARGV[3]  caller's clock reading in seconds
// ARGV[4]  key TTL in seconds; an expired bucket is an empty bucket
//
// Returns {allowed (0|1), level after the step}.
var leakScriptSrc = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "level", "last")
local level = tonumber(state[1]) or 0
local last = tonumber(state[2]) or now

-- A reading older than the stored one drains nothing.
local elapsed = now - last
if elapsed < 0 then
  elapsed = 0
else
  last = now
end

level = math.max(0, level - elapsed * rate)

local allowed = 0
if level < capacity then
  level = level + 1
  allowed = 1
end

redis.call("HSET", key, "level", string.format("%.17g", level), "last", string.format("%.17g", last))
redis.call("EXPIRE", key, ttl)

return {allowed, string.format("%.17g", level)}
`
