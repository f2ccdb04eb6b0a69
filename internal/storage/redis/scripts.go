package redis

const (
	// saveStateScript replaces a state blob and bumps its revision
	saveStateScript = `
local state_key = KEYS[1]     -- kclinic:state:{key}

local data = ARGV[1]
local updated_at = ARGV[2]

redis.call('HSET', state_key,
  'data', data,
  'updated_at', updated_at
)

return redis.call('HINCRBY', state_key, 'revision', 1)
`

	// recordArchiveScript atomically writes a finished session and its indexes
	recordArchiveScript = `
local record_key = KEYS[1]        -- kclinic:archive:{id}
local by_end = KEYS[2]            -- kclinic:archive:by_end
local by_practitioner = KEYS[3]   -- kclinic:archive:practitioner:{practitionerID}
local by_patient = KEYS[4]        -- kclinic:archive:patient:{patientID}

local id = ARGV[1]
local score = tonumber(ARGV[2])
local ttl_seconds = tonumber(ARGV[3])
local prefix = ARGV[4]

-- Drop index entries left by a previous version of this record
local previous = redis.call('HMGET', record_key, 'practitioner_id', 'patient_id')
if previous[1] then
  redis.call('ZREM', prefix .. 'archive:practitioner:' .. previous[1], id)
end
if previous[2] then
  redis.call('ZREM', prefix .. 'archive:patient:' .. previous[2], id)
end

redis.call('DEL', record_key)
redis.call('HSET', record_key, unpack(ARGV, 5))

redis.call('ZADD', by_end, score, id)
redis.call('ZADD', by_practitioner, score, id)
redis.call('ZADD', by_patient, score, id)

if ttl_seconds > 0 then
  redis.call('EXPIRE', record_key, ttl_seconds)
end

return 'OK'
`
)
