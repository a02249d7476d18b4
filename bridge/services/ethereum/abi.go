/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ethereum

const receiveMethod = "receiveByEthereumAssetAddress"

// bridgeABI is the part of the bridge contract used to release withdrawn assets
const bridgeABI = `[
  {
    "type": "function",
    "name": "receiveByEthereumAssetAddress",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "tokenAddress", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "to", "type": "address"},
      {"name": "from", "type": "address"},
      {"name": "txHash", "type": "bytes32"},
      {"name": "v", "type": "uint8[]"},
      {"name": "r", "type": "bytes32[]"},
      {"name": "s", "type": "bytes32[]"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "used",
    "stateMutability": "view",
    "inputs": [{"name": "", "type": "bytes32"}],
    "outputs": [{"name": "", "type": "bool"}]
  }
]`
