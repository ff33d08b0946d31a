package workqueue

import "github.com/redis/go-redis/v9"

// KEYS: ready urgent, ready digest, inflight, jobs. ARGV: now ms, visibility deadline ms.
var dequeueScript = redis.NewScript(`
for i = 1, 2 do
	local ids = redis.call('ZRANGEBYSCORE', KEYS[i], '-inf', ARGV[1], 'LIMIT', 0, 1)
	if #ids > 0 then
		local id = ids[1]
		redis.call('ZREM', KEYS[i], id)
		local body = redis.call('HGET', KEYS[4], id)
		if not body then
			return {id, ''}
		end
		redis.call('ZADD', KEYS[3], ARGV[2], id)
		return {id, body}
	end
end
return false
`)

// KEYS: inflight, ready, jobs. ARGV: id, job json, due ms.
var retryScript = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// KEYS: inflight, jobs, ready urgent, ready digest. ARGV: now ms.
var reapScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
local moved = 0
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local body = redis.call('HGET', KEYS[2], id)
	if body then
		local job = cjson.decode(body)
		local target = KEYS[3]
		if job.priority == 'digest' then
			target = KEYS[4]
		end
		redis.call('ZADD', target, ARGV[1], id)
		moved = moved + 1
	end
end
return moved
`)
