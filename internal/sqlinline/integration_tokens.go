package sqlinline

// AI provider keys, one row per provider. properties records who rotated the
// key and when.

const QSelectIntegrationToken = `--sql 3f0c9a4e-52d1-4b8e-9d6a-0e7b1c2f8a61
select token, properties->>'set_by', updated_at
from integration_tokens
where provider = $1::text and token <> '';
`

const QUpsertIntegrationToken = `--sql c81d27b5-6a3e-4f09-b2d4-95e1a7f3c0d8
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
