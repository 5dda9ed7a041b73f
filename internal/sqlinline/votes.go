package sqlinline

const QLockMilestone = `--sql f5fec18c-0024-468a-aee1-24ebefbda439
select id, project_id, title, description, percentage, required_amount::text, current_amount::text, status, created_at, updated_at
from milestones
where id = $1::bigint
for update;
`

// QInsertMilestoneVote weighs the vote by the voter's confirmed donations to
// the milestone's project. A voter without any inserts nothing.
const QInsertMilestoneVote = `--sql 7301ce49-1403-4431-973f-8c46fa4b1e83
insert into milestone_votes (milestone_id, voter_address, approve, weight, created_at)
select m.id, lower($2::text), $3::boolean, sum(d.amount), now()
from milestones m
join donations d on d.project_id = m.project_id
 and d.status = 'CONFIRMED'
 and lower(d.donor_address) = lower($2::text)
where m.id = $1::bigint
group by m.id
returning id, milestone_id, voter_address, approve, weight::text, created_at;
`

const QTallyMilestoneVotes = `--sql e4fec48c-5ee3-4a8d-baeb-01232f3f8b60
select coalesce(sum(v.weight) filter (where v.approve), 0)::text,
       coalesce(sum(v.weight) filter (where not v.approve), 0)::text,
       count(v.id),
       p.current_amount::text
from milestones m
join projects p on p.id = m.project_id
left join milestone_votes v on v.milestone_id = m.id
where m.id = $1::bigint
group by p.current_amount;
`

const QListMilestoneVotes = `--sql 2e4086b1-15a1-4558-8701-7c7dc8f6e9bd
select id, milestone_id, voter_address, approve, weight::text, created_at
from milestone_votes
where milestone_id = $1::bigint
order by created_at asc, id asc;
`
