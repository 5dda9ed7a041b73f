package sqlinline

const QInsertProject = `--sql 71b10ef0-dcdd-4841-9cde-5ee1889d6492
insert into projects (title, description, target_amount, current_amount, status, creator_address, category, image_url, end_date, created_at, updated_at)
values ($1::text, $2::text, $3::numeric, 0, 'ACTIVE', $4::text, $5::text, $6::text, $7::timestamptz, now(), now())
returning id, title, description, target_amount::text, current_amount::text, status, creator_address, category, image_url, end_date, created_at, updated_at;
`

const QSelectProjectByID = `--sql 167efbe2-6b17-4216-b430-59754f480a83
select id, title, description, target_amount::text, current_amount::text, status, creator_address, category, image_url, end_date, created_at, updated_at
from projects
where id = $1::bigint;
`

// QListProjects treats empty filter arguments as "any". $3 is an already
// escaped LIKE fragment.
const QListProjects = `--sql 40ba5d9d-faf4-42d3-8154-61a9a43e94fc
select id, title, description, target_amount::text, current_amount::text, status, creator_address, category, image_url, end_date, created_at, updated_at
from projects
where ($1::text = '' or category = $1::text)
  and ($2::text = '' or status = $2::text)
  and ($3::text = '' or title ilike '%' || $3::text || '%' escape '\')
  and ($4::text = '' or lower(creator_address) = lower($4::text))
order by
  case when $5::text = 'popular' then current_amount end desc nulls last,
  case when $5::text = 'ending' then end_date end asc nulls last,
  created_at desc,
  id desc
limit $6::int offset $7::int;
`

const QListProjectTitles = `--sql fe038b84-693a-4e18-9882-7034e78b1e84
select id, title
from projects
where status = 'ACTIVE'
order by created_at desc
limit $1::int;
`

const QUpdateProjectStatus = `--sql 2d0b41d1-967b-4b96-a07d-f10152382526
update projects
set status = $2::text,
    updated_at = now()
where id = $1::bigint
returning id, title, description, target_amount::text, current_amount::text, status, creator_address, category, image_url, end_date, created_at, updated_at;
`

const QIncrementProjectTotal = `--sql 118005dc-0661-46bb-9aad-c2e1796de6b1
update projects
set current_amount = current_amount + $2::numeric,
    updated_at = now()
where id = $1::bigint
returning current_amount::text;
`
