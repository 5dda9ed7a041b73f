package sqlinline

const QStatsSummary = `--sql 1f78446a-0c8a-40ad-90bd-5f40b2433de2
select
    (select count(*) from projects),
    (select count(*) from projects where status = 'ACTIVE'),
    (select count(*) from donations where status = 'CONFIRMED'),
    (select coalesce(sum(amount), 0)::text from donations where status = 'CONFIRMED'),
    (select count(distinct lower(donor_address)) from donations where status = 'CONFIRMED'),
    (select count(*) from donations where status = 'PENDING');
`

const QLeaderboard = `--sql 3ab17cdf-d746-44dc-b920-4fc9df708b8b
select lower(donor_address) as donor,
       sum(amount)::text as total,
       count(*) as donations,
       max(created_at) as last_donation
from donations
where status = 'CONFIRMED'
  and ($1::timestamptz is null or created_at >= $1::timestamptz)
group by lower(donor_address)
order by sum(amount) desc, max(created_at) asc
limit $2::int;
`
