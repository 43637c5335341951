package sqlinline

const QCreateProviderSettings = `--sql 3c1d7f0e-5b6a-4e2f-9d84-6a0b1c2d3e4f
create table if not exists provider_settings (
    key text primary key,
    value jsonb not null,
    updated_at timestamptz not null default now()
);
`

const QSelectProviderSetting = `--sql 9f2a4c6e-1b3d-4f5a-8c7e-2d4f6a8b0c1e
select value
from provider_settings
where key = $1::text
limit 1;
`

// The upsert replaces the whole document in one statement, so readers never
// observe a partially written configuration.
const QUpsertProviderSetting = `--sql 5e7b9d1f-3a5c-4e7f-b1d3-f5a7c9e1b3d5
with incoming as (
    select
        $1::text as key,
        $2::jsonb as value
)
insert into provider_settings (key, value, updated_at)
values ((select key from incoming), (select value from incoming), now())
on conflict (key) do update set
    value = excluded.value,
    updated_at = now();
`
