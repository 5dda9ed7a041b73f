package sqlinline

const QInsertWalletSession = `--sql fb51c267-98a0-49b0-bdc0-d9d33f4f16a4
insert into wallet_sessions (id, provider, address, chain_id, user_id, email, telegram_id, created_at, expires_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text, $7::bigint, $8::timestamptz, $9::timestamptz);
`

const QSelectWalletSession = `--sql cd68fb1e-82c1-4cf6-afc8-552fb87d3174
select id, provider, address, chain_id, user_id, email, telegram_id, created_at, expires_at, revoked_at
from wallet_sessions
where id = $1::uuid;
`

const QRevokeWalletSession = `--sql 3c17ed4d-f5c4-4834-86dc-565c7f217faa
update wallet_sessions
set revoked_at = now()
where id = $1::uuid
  and revoked_at is null;
`
