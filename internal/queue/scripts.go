package queue

import "github.com/redis/go-redis/v9"

// Every mutation of queue state is a single Lua script so that concurrent
// workers and producers always observe a consistent broker: a job is in
// exactly one of waiting/active/delayed/completed/failed at any moment.
//
// All scripts take KEYS = {waiting, active, delayed, completed, failed, seq}
// and ARGV[1] = job key prefix.

// enqueueScript adds a job unless one with the same id already exists in any
// state. The waiting zset score is priority*2^40+seq: strict FIFO inside a
// priority class, lower priority number served first.
//
// ARGV: prefix, jobID, payload, priority, maxAttempts, maxStalls, nowMs
var enqueueScript = redis.NewScript(`
local jobKey = ARGV[1] .. ARGV[2]
if redis.call('EXISTS', jobKey) == 1 then
  return 0
end
local seq = redis.call('INCR', KEYS[6])
local score = tonumber(ARGV[4]) * 1099511627776 + seq
redis.call('HSET', jobKey,
  'id', ARGV[2],
  'payload', ARGV[3],
  'status', 'waiting',
  'priority', ARGV[4],
  'attempts', 0,
  'maxAttempts', ARGV[5],
  'stalls', 0,
  'maxStalls', ARGV[6],
  'progress', 0,
  'failure', '',
  'createdAt', ARGV[7],
  'score', score)
redis.call('ZADD', KEYS[1], score, ARGV[2])
return 1
`)

// claimScript first promotes delayed jobs whose backoff has elapsed, then
// hands the best waiting job to the calling worker under a lock that expires
// at ARGV[4].
//
// ARGV: prefix, workerID, nowMs, lockExpiryMs
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[3])
for _, id in ipairs(due) do
  local k = ARGV[1] .. id
  local score = tonumber(redis.call('HGET', k, 'score'))
  redis.call('ZREM', KEYS[3], id)
  redis.call('ZADD', KEYS[1], score, id)
  redis.call('HSET', k, 'status', 'waiting')
end

local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
  return false
end
local id = popped[1]
local k = ARGV[1] .. id
redis.call('HSET', k,
  'status', 'active',
  'lockOwner', ARGV[2],
  'lockExpiry', ARGV[4],
  'processedAt', ARGV[3])
redis.call('HINCRBY', k, 'attempts', 1)
redis.call('ZADD', KEYS[2], tonumber(ARGV[4]), id)
return redis.call('HGETALL', k)
`)

// completeScript finishes a job and applies the completed-set retention
// policy (max age, then max count). The owner check makes a late ack from a
// worker whose lock was reclaimed a no-op.
//
// ARGV: prefix, jobID, workerID, nowMs, keepAgeMs, keepCount
var completeScript = redis.NewScript(`
local k = ARGV[1] .. ARGV[2]
if redis.call('HGET', k, 'lockOwner') ~= ARGV[3] then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('HDEL', k, 'lockOwner', 'lockExpiry')
redis.call('HSET', k, 'status', 'completed', 'finishedAt', ARGV[4], 'progress', 100)
redis.call('ZADD', KEYS[4], tonumber(ARGV[4]), ARGV[2])

local cutoff = tonumber(ARGV[4]) - tonumber(ARGV[5])
local old = redis.call('ZRANGEBYSCORE', KEYS[4], '-inf', cutoff)
for _, oid in ipairs(old) do
  redis.call('DEL', ARGV[1] .. oid)
end
redis.call('ZREMRANGEBYSCORE', KEYS[4], '-inf', cutoff)

local excess = redis.call('ZCARD', KEYS[4]) - tonumber(ARGV[6])
if excess > 0 then
  local drop = redis.call('ZRANGE', KEYS[4], 0, excess - 1)
  for _, oid in ipairs(drop) do
    redis.call('DEL', ARGV[1] .. oid)
  end
  redis.call('ZREMRANGEBYRANK', KEYS[4], 0, excess - 1)
end
return 1
`)

// failScript records a failure. Retryable failures with attempts left move
// to the delayed set until ARGV[7]; everything else lands in failed, trimmed
// by age.
//
// ARGV: prefix, jobID, workerID, nowMs, reason, retryable, readyAtMs, keepAgeMs
var failScript = redis.NewScript(`
local k = ARGV[1] .. ARGV[2]
if redis.call('HGET', k, 'lockOwner') ~= ARGV[3] then
  return 'lost'
end
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('HDEL', k, 'lockOwner', 'lockExpiry')
redis.call('HSET', k, 'failure', ARGV[5])

local attempts = tonumber(redis.call('HGET', k, 'attempts'))
local maxAttempts = tonumber(redis.call('HGET', k, 'maxAttempts'))
if ARGV[6] == '1' and attempts < maxAttempts then
  redis.call('HSET', k, 'status', 'delayed')
  redis.call('ZADD', KEYS[3], tonumber(ARGV[7]), ARGV[2])
  return 'delayed'
end

redis.call('HSET', k, 'status', 'failed', 'finishedAt', ARGV[4])
redis.call('ZADD', KEYS[5], tonumber(ARGV[4]), ARGV[2])

local cutoff = tonumber(ARGV[4]) - tonumber(ARGV[8])
local old = redis.call('ZRANGEBYSCORE', KEYS[5], '-inf', cutoff)
for _, oid in ipairs(old) do
  redis.call('DEL', ARGV[1] .. oid)
end
redis.call('ZREMRANGEBYSCORE', KEYS[5], '-inf', cutoff)
return 'failed'
`)

// extendLockScript is the heartbeat: only the current owner may push the
// lock expiry forward.
//
// ARGV: prefix, jobID, workerID, newExpiryMs
var extendLockScript = redis.NewScript(`
local k = ARGV[1] .. ARGV[2]
if redis.call('HGET', k, 'lockOwner') ~= ARGV[3] then
  return 0
end
redis.call('HSET', k, 'lockExpiry', ARGV[4])
redis.call('ZADD', KEYS[2], tonumber(ARGV[4]), ARGV[2])
return 1
`)

// reclaimScript releases jobs whose lock expired: the claiming worker died
// or hung. Each stall is counted; beyond maxStalls the job fails for good
// instead of looping forever between workers.
//
// ARGV: prefix, nowMs
var reclaimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[2])
local requeued = 0
local failed = 0
for _, id in ipairs(expired) do
  local k = ARGV[1] .. id
  redis.call('ZREM', KEYS[2], id)
  redis.call('HDEL', k, 'lockOwner', 'lockExpiry')
  local stalls = redis.call('HINCRBY', k, 'stalls', 1)
  local maxStalls = tonumber(redis.call('HGET', k, 'maxStalls'))
  if stalls > maxStalls then
    redis.call('HSET', k, 'status', 'failed',
      'failure', 'job stalled more than maxStalledCount times',
      'finishedAt', ARGV[2])
    redis.call('ZADD', KEYS[5], tonumber(ARGV[2]), id)
    failed = failed + 1
  else
    local score = tonumber(redis.call('HGET', k, 'score'))
    redis.call('HSET', k, 'status', 'waiting')
    redis.call('ZADD', KEYS[1], score, id)
    requeued = requeued + 1
  end
end
return {requeued, failed}
`)
