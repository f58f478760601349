package apechain

// predictorABI is the minimal interface of the prediction market factory
// contract: market creation plus the event used to recover the on-chain id.
const predictorABI = `[
  {
    "type": "function",
    "name": "createMarket",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "question", "type": "string"},
      {"name": "options", "type": "string[]"},
      {"name": "endTime", "type": "uint256"},
      {"name": "category", "type": "string"}
    ],
    "outputs": [{"name": "marketId", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "markets",
    "stateMutability": "view",
    "inputs": [{"name": "marketId", "type": "uint256"}],
    "outputs": [{"name": "market", "type": "address"}]
  },
  {
    "type": "event",
    "name": "MarketCreated",
    "inputs": [
      {"name": "marketId", "type": "uint256", "indexed": true},
      {"name": "question", "type": "string", "indexed": false},
      {"name": "creator", "type": "address", "indexed": false}
    ],
    "anonymous": false
  }
]`
