package healthkey

// IDL describes the program interface for clients. Instruction data is the
// 8-byte discriminator sha256("global:<name>")[:8] followed by the RLP list of
// args in the order given.
const IDL = `{
  "version": "0.1.0",
  "name": "healthkey_protocol",
  "instructions": [
    {
      "name": "initialize_user_profile",
      "accounts": [
        {"name": "userProfile", "isMut": true, "isSigner": false, "pda": {"seeds": ["user_profile", "authority"]}},
        {"name": "authority", "isMut": true, "isSigner": true},
        {"name": "systemProgram", "isMut": false, "isSigner": false}
      ],
      "args": [
        {"name": "contentPointer", "type": "string"},
        {"name": "goal", "type": "string"}
      ]
    },
    {
      "name": "reward_user",
      "accounts": [
        {"name": "vaultAuthority", "isMut": false, "isSigner": false, "pda": {"seeds": ["vault"]}},
        {"name": "mint", "isMut": false, "isSigner": false},
        {"name": "user", "isMut": true, "isSigner": true},
        {"name": "recipient", "isMut": false, "isSigner": false},
        {"name": "userTokenAccount", "isMut": true, "isSigner": false, "associatedToken": ["recipient", "mint"]},
        {"name": "vaultTokenAccount", "isMut": true, "isSigner": false, "associatedToken": ["vaultAuthority", "mint"]},
        {"name": "systemProgram", "isMut": false, "isSigner": false},
        {"name": "tokenProgram", "isMut": false, "isSigner": false}
      ],
      "args": [
        {"name": "amount", "type": "u64"}
      ]
    }
  ],
  "accounts": [
    {
      "name": "UserProfile",
      "size": 244,
      "type": {
        "kind": "struct",
        "fields": [
          {"name": "authority", "type": "address"},
          {"name": "contentPointer", "type": {"string": 100}},
          {"name": "goal", "type": {"string": 100}},
          {"name": "createdAt", "type": "i64"}
        ]
      }
    }
  ],
  "errors": [
    {"code": 6000, "name": "InvalidAmount", "msg": "Amount must be greater than zero"},
    {"code": 6001, "name": "AccountMismatch", "msg": "Account does not satisfy its constraint"},
    {"code": 6002, "name": "DerivationMismatch", "msg": "Account does not match its derivation"},
    {"code": 6003, "name": "AlreadyExists", "msg": "Account already exists"},
    {"code": 6004, "name": "FieldTooLong", "msg": "Field exceeds its capacity"}
  ]
}`
