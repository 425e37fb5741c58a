package telemetry

import "github.com/redis/go-redis/v9"

// block and tx streams use "<height>-<seq>" ids so XRANGE by height works
var BlockScript = redis.NewScript(`
local base_key = ARGV[1]
local block_height = ARGV[2]
local hash = ARGV[3]
local num_txs = ARGV[4]
local chain_id = ARGV[5]
local timestamp = ARGV[6]

local sequence_key = base_key .. ":sequence_block:" .. block_height
local sequence = redis.call("INCR", sequence_key)
local id = block_height .. "-" .. sequence

redis.call("XADD", base_key .. ":blocks", id,
           "height", block_height,
           "hash", hash,
           "num_txs", num_txs,
           "chain_id", chain_id,
           "timestamp", timestamp)

return id
`)

var TxScript = redis.NewScript(`
local base_key = ARGV[1]
local block_height = ARGV[2]
local hash = ARGV[3]
local tx_type = ARGV[4]
local timestamp = ARGV[5]

local sequence_key = base_key .. ":sequence_tx:" .. block_height
local sequence = redis.call("INCR", sequence_key)
local id = block_height .. "-" .. sequence

redis.call("XADD", base_key .. ":txs", id,
           "hash", hash,
           "height", block_height,
           "type", tx_type,
           "timestamp", timestamp)

return id
`)
