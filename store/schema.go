package store

const (
	sCHEMA_PROPOSALS = `
		CREATE TABLE IF NOT EXISTS proposals (
			id                               BIGSERIAL PRIMARY KEY,
			userop_hash                      varchar(66) not null unique,
			sender_address                   varchar(42) not null,
			nonce                            numeric(78,0) not null,
			call_data                        bytea,
			verification_gas_limit           numeric(78,0) not null,
			call_gas_limit                   numeric(78,0) not null,
			pre_verification_gas             numeric(78,0) not null,
			max_fee_per_gas                  numeric(78,0) not null,
			max_priority_fee_per_gas         numeric(78,0) not null,
			factory_address                  varchar(42),
			factory_data                     bytea,
			paymaster_address                varchar(42),
			paymaster_verification_gas_limit numeric(78,0),
			paymaster_post_op_gas_limit      numeric(78,0),
			paymaster_data                   bytea,
			chain_id                         varchar(64) not null,
			content                          text not null,
			created_at                       timestamptz not null default now()
		);`

	sCHEMA_OUTCOMES = `
		CREATE TABLE IF NOT EXISTS outcomes (
			id              BIGSERIAL PRIMARY KEY,
			signer_address  varchar(42) not null,
			account_address varchar(42) not null,
			userop_hash     varchar(66) not null,
			signature       text not null,
			reason          text not null,
			created_at      timestamptz not null default now(),

			UNIQUE (signer_address, userop_hash)
		);`
)
