package sqlinline

// QInsertDonation returns no row when the transaction id already exists.
const QInsertDonation = `--sql 30223edc-033f-4ee9-a3df-ce47be61b89a
insert into donations (project_id, donor_address, amount, transaction_id, network, status, failure_reason, created_at)
values ($1::bigint, $2::text, $3::numeric, $4::text, $5::text, 'PENDING', '', now())
on conflict (transaction_id) do nothing
returning id, project_id, donor_address, amount::text, transaction_id, network, status, failure_reason, created_at, confirmed_at;
`

const QSelectDonationByTx = `--sql f80fefbb-ee0a-428b-b03c-1f11bdf8cdfd
select id, project_id, donor_address, amount::text, transaction_id, network, status, failure_reason, created_at, confirmed_at
from donations
where transaction_id = $1::text;
`

const QSelectDonationByID = `--sql 04e0d5e0-9e0b-4341-82ab-9a183640c9a9
select id, project_id, donor_address, amount::text, transaction_id, network, status, failure_reason, created_at, confirmed_at
from donations
where id = $1::bigint;
`

const QLockDonation = `--sql 79032db3-f372-4297-adb0-c0f16840485a
select id, project_id, donor_address, amount::text, transaction_id, network, status, failure_reason, created_at, confirmed_at
from donations
where id = $1::bigint
for update;
`

const QMarkDonationConfirmed = `--sql 57786e13-31be-4821-8608-2aca7a510912
update donations
set status = 'CONFIRMED',
    failure_reason = '',
    confirmed_at = now()
where id = $1::bigint
  and status = 'PENDING'
returning confirmed_at;
`

const QFailDonation = `--sql d4bfb116-7a42-468f-8fb1-7d9080e6d586
update donations
set status = 'FAILED',
    failure_reason = $2::text
where id = $1::bigint
  and status = 'PENDING';
`

const QListDonationsByProject = `--sql 5a51bbdd-435c-4ae5-bdb9-a8f0a8b4b3ad
select id, project_id, donor_address, amount::text, transaction_id, network, status, failure_reason, created_at, confirmed_at
from donations
where project_id = $1::bigint
order by created_at desc, id desc
limit $2::int;
`

const QListDonationsByDonor = `--sql 5755b859-cb95-4aa6-abb3-1b7379665b39
select id, project_id, donor_address, amount::text, transaction_id, network, status, failure_reason, created_at, confirmed_at
from donations
where lower(donor_address) = lower($1::text)
order by created_at desc, id desc
limit $2::int;
`

const QListPendingDonations = `--sql 202a5c29-4f13-4fa2-b75b-83c0c3f78add
select id, project_id, donor_address, amount::text, transaction_id, network, status, failure_reason, created_at, confirmed_at
from donations
where status = 'PENDING'
  and created_at < $1::timestamptz
order by created_at asc
limit $2::int;
`

// QLockProjects row-locks every project so QReconcileTotals, run as the next
// statement, reads a snapshot no confirmation can slip past.
const QLockProjects = `--sql ff34e360-e24a-4961-a75f-21282111eb51
select id
from projects
order by id
for update;
`

// QReconcileTotals rewrites drifted project totals from confirmed donations and
// reports what changed. Run it after QLockProjects in the same transaction.
const QReconcileTotals = `--sql ff533ccd-6145-4c14-8873-e7893788c461
with derived as (
    select p.id,
           p.current_amount as stored,
           coalesce(sum(d.amount) filter (where d.status = 'CONFIRMED'), 0) as total
    from projects p
    left join donations d on d.project_id = p.id
    group by p.id
), drifted as (
    update projects p
    set current_amount = derived.total,
        updated_at = now()
    from derived
    where p.id = derived.id
      and p.current_amount <> derived.total
    returning p.id, derived.stored, derived.total
)
select id, stored::text, total::text
from drifted
order by id;
`
