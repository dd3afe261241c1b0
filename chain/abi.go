package chain

// Minimal ABI fragments for the contracts the server talks to. Only the
// entry points and events used here are listed.

const orchestratorABI = `[
	{"type":"function","name":"deployEscrowForGroup","stateMutability":"nonpayable",
	 "inputs":[{"name":"groupId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"groupEscrows","stateMutability":"view",
	 "inputs":[{"name":"groupId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"EscrowDeployed","anonymous":false,
	 "inputs":[{"name":"groupId","type":"uint256","indexed":true},
	           {"name":"escrow","type":"address","indexed":false}]}
]`

const escrowABI = `[
	{"type":"function","name":"addDocument","stateMutability":"nonpayable",
	 "inputs":[{"name":"documentHash","type":"string"},
	           {"name":"price","type":"uint256"},
	           {"name":"payee","type":"address"},
	           {"name":"groupId","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"makePayment","stateMutability":"nonpayable",
	 "inputs":[{"name":"documentId","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"isDocumentUnlocked","stateMutability":"view",
	 "inputs":[{"name":"documentId","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"DocumentAdded","anonymous":false,
	 "inputs":[{"name":"documentId","type":"uint256","indexed":true},
	           {"name":"payee","type":"address","indexed":true},
	           {"name":"price","type":"uint256","indexed":false}]}
]`

const lawyerIdentityABI = `[
	{"type":"function","name":"safeMint","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[{"name":"from","type":"address","indexed":true},
	           {"name":"to","type":"address","indexed":true},
	           {"name":"tokenId","type":"uint256","indexed":true}]}
]`
